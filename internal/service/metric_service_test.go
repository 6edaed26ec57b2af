package service

import (
	"context"
	"testing"
	"time"

	"github.com/dushixiang/vole/internal/models"
	"github.com/dushixiang/vole/internal/sampler"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestMetricService(t *testing.T) (*MetricService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	return NewMetricService(zap.NewNop(), db), db
}

func fullSampleSet(hostID string, capturedAt int64) *sampler.SampleSet {
	return &sampler.SampleSet{
		HostID:     hostID,
		Address:    "192.168.1.10",
		Hostname:   "web-1",
		CapturedAt: capturedAt,
		CPU:        &sampler.CPUStat{Percent: 42.5, Cores: 4},
		Memory:     &sampler.MemoryStat{Total: 8 << 30, Used: 4 << 30, Available: 4 << 30, Percent: 50},
		Disks: []sampler.DiskStat{
			{Device: "/dev/vda1", Mountpoint: "/", Total: 50 << 30, Used: 20 << 30, Free: 30 << 30, Percent: 40},
			{Device: "/dev/vdb1", Mountpoint: "/data", Total: 100 << 30, Used: 90 << 30, Free: 10 << 30, Percent: 90},
		},
		Processes: []models.ProcessInfo{
			{PID: 1234, Name: "mysqld", Username: "mysql", CPUPercent: 12.3, MemoryPercent: 25.6, MemoryRSS: 2 << 30},
		},
	}
}

func TestSaveSampleSetAtomic(t *testing.T) {
	s, db := newTestMetricService(t)
	ctx := context.Background()

	capturedAt := time.Now().UnixMilli()
	if err := s.SaveSampleSet(ctx, fullSampleSet("host-1", capturedAt)); err != nil {
		t.Fatalf("保存采集结果失败: %v", err)
	}

	// 所有种类共享同一个采集时间
	var cpuSample models.CPUSample
	if err := db.Where("host_id = ?", "host-1").First(&cpuSample).Error; err != nil {
		t.Fatalf("查询CPU样本失败: %v", err)
	}
	if cpuSample.CapturedAt != capturedAt {
		t.Errorf("CPU样本采集时间错误: %d", cpuSample.CapturedAt)
	}

	var diskCount int64
	db.Model(&models.DiskSample{}).Where("host_id = ? AND captured_at = ?", "host-1", capturedAt).Count(&diskCount)
	if diskCount != 2 {
		t.Errorf("应写入2条磁盘样本, 实际 %d 条", diskCount)
	}

	var procSample models.ProcessSample
	if err := db.Where("host_id = ?", "host-1").First(&procSample).Error; err != nil {
		t.Fatalf("查询进程样本失败: %v", err)
	}
	if len(procSample.Processes) != 1 || procSample.Processes[0].Name != "mysqld" {
		t.Errorf("进程样本内容错误: %+v", procSample.Processes)
	}
}

func TestSaveSampleSetRollsBackOnFailure(t *testing.T) {
	s, db := newTestMetricService(t)
	ctx := context.Background()

	// 删掉磁盘表：CPU和内存先写成功，第三步写磁盘失败，
	// 整轮必须回滚，不能留下部分样本
	if err := db.Migrator().DropTable(&models.DiskSample{}); err != nil {
		t.Fatalf("删除磁盘表失败: %v", err)
	}

	capturedAt := time.Now().UnixMilli()
	if err := s.SaveSampleSet(ctx, fullSampleSet("host-1", capturedAt)); err == nil {
		t.Fatal("磁盘样本写入失败时应返回错误")
	}

	var cpuCount, memCount, procCount int64
	db.Model(&models.CPUSample{}).Where("host_id = ?", "host-1").Count(&cpuCount)
	db.Model(&models.MemorySample{}).Where("host_id = ?", "host-1").Count(&memCount)
	db.Model(&models.ProcessSample{}).Where("host_id = ?", "host-1").Count(&procCount)
	if cpuCount != 0 || memCount != 0 || procCount != 0 {
		t.Errorf("写入失败后不应留下部分样本: cpu=%d mem=%d proc=%d", cpuCount, memCount, procCount)
	}
}

func TestSaveSampleSetPartialKinds(t *testing.T) {
	s, db := newTestMetricService(t)
	ctx := context.Background()

	// 远程主机没有进程列表，缺失的种类直接跳过
	set := &sampler.SampleSet{
		HostID:     "host-2",
		Address:    "192.168.1.20",
		CapturedAt: time.Now().UnixMilli(),
		CPU:        &sampler.CPUStat{Percent: 10, Cores: 2},
	}
	if err := s.SaveSampleSet(ctx, set); err != nil {
		t.Fatalf("保存采集结果失败: %v", err)
	}

	var memCount, procCount int64
	db.Model(&models.MemorySample{}).Where("host_id = ?", "host-2").Count(&memCount)
	db.Model(&models.ProcessSample{}).Where("host_id = ?", "host-2").Count(&procCount)
	if memCount != 0 || procCount != 0 {
		t.Errorf("缺失的种类不应写入: mem=%d proc=%d", memCount, procCount)
	}
}

func TestGetLatestMetrics(t *testing.T) {
	s, _ := newTestMetricService(t)
	ctx := context.Background()

	older := time.Now().Add(-time.Minute).UnixMilli()
	newer := time.Now().UnixMilli()

	if err := s.SaveSampleSet(ctx, fullSampleSet("host-1", older)); err != nil {
		t.Fatalf("保存采集结果失败: %v", err)
	}
	newest := fullSampleSet("host-1", newer)
	newest.CPU.Percent = 77
	if err := s.SaveSampleSet(ctx, newest); err != nil {
		t.Fatalf("保存采集结果失败: %v", err)
	}

	latest, err := s.GetLatestMetrics(ctx, "host-1")
	if err != nil {
		t.Fatalf("查询最新指标失败: %v", err)
	}
	if latest.CPU == nil || latest.CPU.Percent != 77 {
		t.Errorf("应返回最新一轮的CPU样本: %+v", latest.CPU)
	}
	if len(latest.Disks) != 2 {
		t.Errorf("应返回最新一轮的全部磁盘样本, 实际 %d 条", len(latest.Disks))
	}

	// 新一轮写入后缓存失效
	third := fullSampleSet("host-1", time.Now().Add(time.Second).UnixMilli())
	third.CPU.Percent = 88
	if err := s.SaveSampleSet(ctx, third); err != nil {
		t.Fatalf("保存采集结果失败: %v", err)
	}
	latest, err = s.GetLatestMetrics(ctx, "host-1")
	if err != nil {
		t.Fatalf("查询最新指标失败: %v", err)
	}
	if latest.CPU.Percent != 88 {
		t.Errorf("写入后应返回新样本, 实际 %v", latest.CPU.Percent)
	}
}

func TestGetLatestMetricsEmpty(t *testing.T) {
	s, _ := newTestMetricService(t)

	latest, err := s.GetLatestMetrics(context.Background(), "no-such-host")
	if err != nil {
		t.Fatalf("查询最新指标失败: %v", err)
	}
	if latest.CPU != nil || latest.Memory != nil || latest.Processes != nil {
		t.Errorf("无数据的主机应返回空指标: %+v", latest)
	}
}

func TestGetRangeMetricsDiskMax(t *testing.T) {
	s, _ := newTestMetricService(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).UnixMilli()
	for i := 0; i < 3; i++ {
		set := fullSampleSet("host-1", base+int64(i)*60_000)
		set.CPU.Percent = float64(10 * (i + 1))
		if err := s.SaveSampleSet(ctx, set); err != nil {
			t.Fatalf("保存采集结果失败: %v", err)
		}
	}

	metrics, err := s.GetRangeMetrics(ctx, "host-1", base, base+10*60_000)
	if err != nil {
		t.Fatalf("查询范围指标失败: %v", err)
	}
	if len(metrics.CPU) != 3 {
		t.Fatalf("应返回3个CPU数据点, 实际 %d 个", len(metrics.CPU))
	}
	if metrics.CPU[0].Value != 10 || metrics.CPU[2].Value != 30 {
		t.Errorf("CPU数据点应按时间升序: %+v", metrics.CPU)
	}

	// 每个时间点有两个挂载点(40%和90%)，取最大值
	if len(metrics.Disk) != 3 {
		t.Fatalf("应返回3个磁盘数据点, 实际 %d 个", len(metrics.Disk))
	}
	for _, point := range metrics.Disk {
		if point.Value != 90 {
			t.Errorf("磁盘数据点应取最大挂载点使用率: %+v", point)
		}
	}
}

func TestPrune(t *testing.T) {
	s, db := newTestMetricService(t)
	ctx := context.Background()

	old := time.Now().AddDate(0, 0, -40).UnixMilli()
	recent := time.Now().UnixMilli()
	if err := s.SaveSampleSet(ctx, fullSampleSet("host-1", old)); err != nil {
		t.Fatalf("保存采集结果失败: %v", err)
	}
	if err := s.SaveSampleSet(ctx, fullSampleSet("host-1", recent)); err != nil {
		t.Fatalf("保存采集结果失败: %v", err)
	}

	if err := s.Prune(ctx, 30); err != nil {
		t.Fatalf("清理失败: %v", err)
	}

	var cpuCount, diskCount int64
	db.Model(&models.CPUSample{}).Count(&cpuCount)
	db.Model(&models.DiskSample{}).Count(&diskCount)
	if cpuCount != 1 {
		t.Errorf("保留期外的CPU样本应被清理, 剩余 %d 条", cpuCount)
	}
	if diskCount != 2 {
		t.Errorf("保留期外的磁盘样本应被清理, 剩余 %d 条", diskCount)
	}
}
