package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dushixiang/vole/internal/config"
	"github.com/dushixiang/vole/internal/models"
	"github.com/dushixiang/vole/internal/sampler"
	"go.uber.org/zap"
)

func newTestAlertService(t *testing.T) *AlertService {
	t.Helper()
	db := newTestDB(t)
	thresholds := config.ThresholdConfig{CPU: 80, Memory: 80, Disk: 80}
	return NewAlertService(zap.NewNop(), db, thresholds, time.Hour, nil)
}

func sampleSetWith(cpu, memory, disk float64) *sampler.SampleSet {
	return &sampler.SampleSet{
		HostID:     "host-1",
		Address:    "192.168.1.10",
		CapturedAt: time.Now().UnixMilli(),
		CPU:        &sampler.CPUStat{Percent: cpu, Cores: 4},
		Memory:     &sampler.MemoryStat{Total: 100, Used: 50, Percent: memory},
		Disks: []sampler.DiskStat{
			{Device: "/dev/vda1", Mountpoint: "/", Percent: disk},
		},
	}
}

func TestEvaluateStrictGreaterThan(t *testing.T) {
	s := newTestAlertService(t)

	t.Run("恰好等于阈值不产生预警", func(t *testing.T) {
		candidates := s.Evaluate(sampleSetWith(80, 80, 80))
		if len(candidates) != 0 {
			t.Errorf("等于阈值不应产生预警, 实际产生 %d 条", len(candidates))
		}
	})

	t.Run("超过阈值产生预警", func(t *testing.T) {
		candidates := s.Evaluate(sampleSetWith(80.1, 95, 81))
		if len(candidates) != 3 {
			t.Fatalf("应产生3条预警候选, 实际 %d 条", len(candidates))
		}
	})

	t.Run("低于阈值不产生预警", func(t *testing.T) {
		candidates := s.Evaluate(sampleSetWith(10, 20, 30))
		if len(candidates) != 0 {
			t.Errorf("低于阈值不应产生预警, 实际产生 %d 条", len(candidates))
		}
	})
}

func TestEvaluateMissingKinds(t *testing.T) {
	s := newTestAlertService(t)

	// 远程主机没有进程指标，部分指标缺失时直接跳过
	set := &sampler.SampleSet{
		HostID:  "host-1",
		Address: "192.168.1.10",
		CPU:     &sampler.CPUStat{Percent: 99},
	}
	candidates := s.Evaluate(set)
	if len(candidates) != 1 {
		t.Fatalf("应只产生CPU预警, 实际 %d 条", len(candidates))
	}
	if candidates[0].AlertType != models.AlertTypeCPU {
		t.Errorf("预警类型错误: %s", candidates[0].AlertType)
	}
}

func TestEvaluateDiskMessage(t *testing.T) {
	s := newTestAlertService(t)

	set := sampleSetWith(10, 10, 92.5)
	candidates := s.Evaluate(set)
	if len(candidates) != 1 {
		t.Fatalf("应产生1条磁盘预警, 实际 %d 条", len(candidates))
	}
	if !strings.Contains(candidates[0].Message, "/dev/vda1") {
		t.Errorf("磁盘预警应包含设备名, 实际: %s", candidates[0].Message)
	}
}

func TestCreateAlertDedup(t *testing.T) {
	s := newTestAlertService(t)
	ctx := context.Background()

	base := time.Now()
	s.now = func() time.Time { return base }

	candidate := AlertCandidate{
		HostID:    "host-1",
		Address:   "192.168.1.10",
		AlertType: models.AlertTypeCPU,
		Message:   "CPU使用率过高: 95.00%",
		Value:     95,
		Threshold: 80,
	}

	// 首次创建成功
	record, err := s.CreateAlert(ctx, candidate)
	if err != nil {
		t.Fatalf("创建预警失败: %v", err)
	}
	if record == nil {
		t.Fatal("首次创建应产生预警记录")
	}

	// 标记为已发送
	if marked, err := s.alertRepo.MarkSent(ctx, record.ID); err != nil || !marked {
		t.Fatalf("标记发送失败: marked=%v err=%v", marked, err)
	}

	t.Run("窗口内已发送的同类型预警被抑制", func(t *testing.T) {
		s.now = func() time.Time { return base.Add(30 * time.Minute) }
		suppressed, err := s.CreateAlert(ctx, candidate)
		if err != nil {
			t.Fatalf("创建预警失败: %v", err)
		}
		if suppressed != nil {
			t.Error("窗口内的重复预警应被抑制")
		}
	})

	t.Run("不同类型的预警不受影响", func(t *testing.T) {
		s.now = func() time.Time { return base.Add(30 * time.Minute) }
		other := candidate
		other.AlertType = models.AlertTypeMemory
		other.Message = "内存使用率过高: 90.00%"
		record, err := s.CreateAlert(ctx, other)
		if err != nil {
			t.Fatalf("创建预警失败: %v", err)
		}
		if record == nil {
			t.Error("不同类型的预警不应被抑制")
		}
	})

	t.Run("窗口过期后允许再次预警", func(t *testing.T) {
		s.now = func() time.Time { return base.Add(61 * time.Minute) }
		record, err := s.CreateAlert(ctx, candidate)
		if err != nil {
			t.Fatalf("创建预警失败: %v", err)
		}
		if record == nil {
			t.Error("窗口过期后应允许创建新预警")
		}
	})
}

func TestCreateAlertPendingDoesNotSuppress(t *testing.T) {
	s := newTestAlertService(t)
	ctx := context.Background()

	// 对齐到窗口边界前1分钟，保证两次创建落在不同的窗口桶
	windowMs := time.Hour.Milliseconds()
	boundary := (time.Now().UnixMilli()/windowMs + 1) * windowMs
	first := time.UnixMilli(boundary - time.Minute.Milliseconds())
	second := time.UnixMilli(boundary + time.Minute.Milliseconds())

	candidate := AlertCandidate{
		HostID:    "host-1",
		Address:   "192.168.1.10",
		AlertType: models.AlertTypeDisk,
		Message:   "磁盘 /dev/vda1 使用率过高: 95.00%",
		Value:     95,
		Threshold: 80,
	}

	s.now = func() time.Time { return first }
	record, err := s.CreateAlert(ctx, candidate)
	if err != nil || record == nil {
		t.Fatalf("首次创建失败: record=%v err=%v", record, err)
	}

	// 第一条未发送成功，不应抑制后续预警
	s.now = func() time.Time { return second }
	another, err := s.CreateAlert(ctx, candidate)
	if err != nil {
		t.Fatalf("创建预警失败: %v", err)
	}
	if another == nil {
		t.Error("未发送成功的预警不应抑制新预警")
	}
}

func TestCreateAlertSameBucketRejected(t *testing.T) {
	s := newTestAlertService(t)
	ctx := context.Background()

	// 固定时间，两次插入落在同一个窗口桶
	base := time.Now()
	s.now = func() time.Time { return base }

	candidate := AlertCandidate{
		HostID:    "host-1",
		Address:   "192.168.1.10",
		AlertType: models.AlertTypeCPU,
		Message:   "CPU使用率过高: 95.00%",
		Value:     95,
		Threshold: 80,
	}

	record, err := s.CreateAlert(ctx, candidate)
	if err != nil || record == nil {
		t.Fatalf("首次创建失败: record=%v err=%v", record, err)
	}

	// 并发采集场景：同窗口桶的重复插入被唯一索引拒绝
	duplicate, err := s.CreateAlert(ctx, candidate)
	if err != nil {
		t.Fatalf("创建预警失败: %v", err)
	}
	if duplicate != nil {
		t.Error("同窗口桶的重复插入应被拒绝")
	}
}

func TestCheckSampleSetCreatesRecords(t *testing.T) {
	s := newTestAlertService(t)
	ctx := context.Background()

	base := time.Now()
	s.now = func() time.Time { return base }

	created := s.CheckSampleSet(ctx, sampleSetWith(95, 90, 85))
	if len(created) != 3 {
		t.Fatalf("应创建3条预警, 实际 %d 条", len(created))
	}

	// 同一窗口内再次检查不应重复创建
	again := s.CheckSampleSet(ctx, sampleSetWith(96, 91, 86))
	if len(again) != 0 {
		t.Errorf("窗口内重复检查不应创建新预警, 实际 %d 条", len(again))
	}
}

func TestCalculateLevel(t *testing.T) {
	tests := []struct {
		value     float64
		threshold float64
		want      string
	}{
		{85, 80, "info"},
		{99.9, 80, "info"},
		{100, 80, "warning"},
		{131, 80, "critical"},
	}
	for _, tt := range tests {
		if got := calculateLevel(tt.value, tt.threshold); got != tt.want {
			t.Errorf("calculateLevel(%v, %v) = %s, 期望 %s", tt.value, tt.threshold, got, tt.want)
		}
	}
}
