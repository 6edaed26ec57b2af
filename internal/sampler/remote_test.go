package sampler

import (
	"math"
	"testing"

	"go.uber.org/zap"
)

func TestPrecheckUnresolvableAddress(t *testing.T) {
	s := NewRemoteSampler(zap.NewNop(), nil)

	// 无法解析的地址在建连前就失败，不进入SSH拨号
	if err := s.precheck("invalid..host"); err == nil {
		t.Error("无法解析的主机地址应当返回错误")
	}
}

func TestParseCPUIdle(t *testing.T) {
	t.Run("正常输出", func(t *testing.T) {
		usage, err := parseCPUIdle("93.5\n")
		if err != nil {
			t.Fatalf("解析失败: %v", err)
		}
		if math.Abs(usage-6.5) > 0.001 {
			t.Errorf("CPU使用率错误: 期望 6.5, 实际 %v", usage)
		}
	})

	t.Run("空闲率100", func(t *testing.T) {
		usage, err := parseCPUIdle("100.0")
		if err != nil {
			t.Fatalf("解析失败: %v", err)
		}
		if usage != 0 {
			t.Errorf("CPU使用率应为0, 实际 %v", usage)
		}
	})

	t.Run("非法输出", func(t *testing.T) {
		if _, err := parseCPUIdle("Cpu(s): garbage"); err == nil {
			t.Error("非法输出应当返回错误")
		}
	})
}

func TestParseCores(t *testing.T) {
	cores, err := parseCores(" 8 \n")
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if cores != 8 {
		t.Errorf("核心数错误: 期望 8, 实际 %d", cores)
	}

	if _, err := parseCores("abc"); err == nil {
		t.Error("非法输出应当返回错误")
	}
}

func TestParseFreeOutput(t *testing.T) {
	t.Run("正常输出", func(t *testing.T) {
		line := "Mem:     8323272704  4161636352   524288000  123456789  3637347352  3889000000\n"
		stat, err := parseFreeOutput(line)
		if err != nil {
			t.Fatalf("解析失败: %v", err)
		}
		if stat.Total != 8323272704 {
			t.Errorf("内存总量错误: %d", stat.Total)
		}
		if stat.Used != 4161636352 {
			t.Errorf("已用内存错误: %d", stat.Used)
		}
		if stat.Available != 3889000000 {
			t.Errorf("可用内存错误: %d", stat.Available)
		}
		if math.Abs(stat.Percent-50.0) > 0.01 {
			t.Errorf("内存使用率错误: 期望约50, 实际 %v", stat.Percent)
		}
	})

	t.Run("字段不足", func(t *testing.T) {
		if _, err := parseFreeOutput("Mem: 1 2"); err == nil {
			t.Error("字段不足应当返回错误")
		}
	})
}

func TestParseDFOutput(t *testing.T) {
	t.Run("正常输出", func(t *testing.T) {
		line := "/dev/vda1  53687091200  21474836480  32212254720  40% /\n"
		stat, err := parseDFOutput(line)
		if err != nil {
			t.Fatalf("解析失败: %v", err)
		}
		if stat.Device != "/dev/vda1" {
			t.Errorf("设备名错误: %s", stat.Device)
		}
		if stat.Mountpoint != "/" {
			t.Errorf("挂载点错误: %s", stat.Mountpoint)
		}
		if stat.Total != 53687091200 {
			t.Errorf("磁盘总量错误: %d", stat.Total)
		}
		if stat.Percent != 40 {
			t.Errorf("磁盘使用率错误: %v", stat.Percent)
		}
	})

	t.Run("字段不足", func(t *testing.T) {
		if _, err := parseDFOutput("/dev/vda1 100"); err == nil {
			t.Error("字段不足应当返回错误")
		}
	})
}
