package service

import (
	"context"
	"time"

	"github.com/dushixiang/vole/internal/models"
	"github.com/dushixiang/vole/internal/repo"
	"github.com/dushixiang/vole/internal/sampler"
	"github.com/go-orz/cache"
	"github.com/go-orz/orz"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LatestMetrics 主机最新一轮采集的指标
type LatestMetrics struct {
	CPU       *models.CPUSample     `json:"cpu"`
	Memory    *models.MemorySample  `json:"memory"`
	Disks     []models.DiskSample   `json:"disks"`
	Processes *models.ProcessSample `json:"processes,omitempty"`
}

// DataPoint 时序数据点
type DataPoint struct {
	Timestamp int64   `json:"timestamp"` // 毫秒
	Value     float64 `json:"value"`
}

// RangeMetrics 时间范围内的指标序列
type RangeMetrics struct {
	CPU    []DataPoint `json:"cpu"`
	Memory []DataPoint `json:"memory"`
	Disk   []DataPoint `json:"disk"` // 每个时间点取所有挂载点的最大使用率
}

// MetricService 指标服务
type MetricService struct {
	*orz.Service
	sampleRepo *repo.SampleRepo
	logger     *zap.Logger

	latestCache cache.Cache[string, *LatestMetrics]
}

func NewMetricService(logger *zap.Logger, db *gorm.DB) *MetricService {
	return &MetricService{
		Service:     orz.NewService(db),
		sampleRepo:  repo.NewSampleRepo(db),
		logger:      logger,
		latestCache: cache.New[string, *LatestMetrics](time.Minute),
	}
}

// SaveSampleSet 持久化一台主机一轮采集的全部指标。
// 所有种类的样本在同一个事务中写入，共享同一个 captured_at：
// 要么整轮落库，要么什么都不写。
func (s *MetricService) SaveSampleSet(ctx context.Context, set *sampler.SampleSet) error {
	err := s.Transaction(ctx, func(ctx context.Context) error {
		if set.CPU != nil {
			cpuSample := &models.CPUSample{
				HostID:     set.HostID,
				Address:    set.Address,
				Percent:    set.CPU.Percent,
				Cores:      set.CPU.Cores,
				CapturedAt: set.CapturedAt,
			}
			if err := s.sampleRepo.CreateCPU(ctx, cpuSample); err != nil {
				return err
			}
		}

		if set.Memory != nil {
			memSample := &models.MemorySample{
				HostID:     set.HostID,
				Address:    set.Address,
				Total:      set.Memory.Total,
				Used:       set.Memory.Used,
				Available:  set.Memory.Available,
				Percent:    set.Memory.Percent,
				CapturedAt: set.CapturedAt,
			}
			if err := s.sampleRepo.CreateMemory(ctx, memSample); err != nil {
				return err
			}
		}

		if len(set.Disks) > 0 {
			diskSamples := make([]models.DiskSample, 0, len(set.Disks))
			for _, d := range set.Disks {
				diskSamples = append(diskSamples, models.DiskSample{
					HostID:     set.HostID,
					Address:    set.Address,
					Device:     d.Device,
					Mountpoint: d.Mountpoint,
					Total:      d.Total,
					Used:       d.Used,
					Free:       d.Free,
					Percent:    d.Percent,
					CapturedAt: set.CapturedAt,
				})
			}
			if err := s.sampleRepo.CreateDisks(ctx, diskSamples); err != nil {
				return err
			}
		}

		if len(set.Processes) > 0 {
			procSample := &models.ProcessSample{
				HostID:     set.HostID,
				Address:    set.Address,
				Processes:  set.Processes,
				CapturedAt: set.CapturedAt,
			}
			if err := s.sampleRepo.CreateProcess(ctx, procSample); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	// 写入成功后让缓存失效，下次查询重建
	s.latestCache.Delete(set.HostID)
	return nil
}

// GetLatestMetrics 获取主机最新指标
func (s *MetricService) GetLatestMetrics(ctx context.Context, hostID string) (*LatestMetrics, error) {
	if cached, ok := s.latestCache.Get(hostID); ok {
		return cached, nil
	}

	cpuSample, err := s.sampleRepo.FindLatestCPU(ctx, hostID)
	if err != nil {
		return nil, err
	}
	memSample, err := s.sampleRepo.FindLatestMemory(ctx, hostID)
	if err != nil {
		return nil, err
	}
	diskSamples, err := s.sampleRepo.FindLatestDisks(ctx, hostID)
	if err != nil {
		return nil, err
	}
	procSample, err := s.sampleRepo.FindLatestProcess(ctx, hostID)
	if err != nil {
		return nil, err
	}

	latest := &LatestMetrics{
		CPU:       cpuSample,
		Memory:    memSample,
		Disks:     diskSamples,
		Processes: procSample,
	}
	s.latestCache.Set(hostID, latest, time.Minute)
	return latest, nil
}

// GetRangeMetrics 查询时间范围内的指标序列
func (s *MetricService) GetRangeMetrics(ctx context.Context, hostID string, start, end int64) (*RangeMetrics, error) {
	cpuSamples, err := s.sampleRepo.FindCPURange(ctx, hostID, start, end)
	if err != nil {
		return nil, err
	}
	memSamples, err := s.sampleRepo.FindMemoryRange(ctx, hostID, start, end)
	if err != nil {
		return nil, err
	}
	diskSamples, err := s.sampleRepo.FindDiskRange(ctx, hostID, start, end)
	if err != nil {
		return nil, err
	}

	result := &RangeMetrics{
		CPU:    make([]DataPoint, 0, len(cpuSamples)),
		Memory: make([]DataPoint, 0, len(memSamples)),
	}
	for _, sample := range cpuSamples {
		result.CPU = append(result.CPU, DataPoint{Timestamp: sample.CapturedAt, Value: sample.Percent})
	}
	for _, sample := range memSamples {
		result.Memory = append(result.Memory, DataPoint{Timestamp: sample.CapturedAt, Value: sample.Percent})
	}

	// 磁盘按采集时间聚合，取所有挂载点的最大使用率
	diskMax := make(map[int64]float64)
	order := make([]int64, 0)
	for _, sample := range diskSamples {
		if _, ok := diskMax[sample.CapturedAt]; !ok {
			order = append(order, sample.CapturedAt)
		}
		if sample.Percent > diskMax[sample.CapturedAt] {
			diskMax[sample.CapturedAt] = sample.Percent
		}
	}
	result.Disk = make([]DataPoint, 0, len(order))
	for _, ts := range order {
		result.Disk = append(result.Disk, DataPoint{Timestamp: ts, Value: diskMax[ts]})
	}

	return result, nil
}

// Prune 清理保留期之外的历史样本
func (s *MetricService) Prune(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays).UnixMilli()
	if err := s.sampleRepo.DeleteBefore(ctx, cutoff); err != nil {
		s.logger.Error("清理历史样本失败", zap.Error(err))
		return err
	}
	s.logger.Info("历史样本清理完成", zap.Int("retentionDays", retentionDays))
	return nil
}
