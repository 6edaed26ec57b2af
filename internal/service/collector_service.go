package service

import (
	"context"
	"sync"
	"time"

	"github.com/dushixiang/vole/internal/config"
	"github.com/dushixiang/vole/internal/models"
	"github.com/dushixiang/vole/internal/sampler"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// HostOutcome 单台主机的采集结果
type HostOutcome string

const (
	OutcomeOK           HostOutcome = "ok"
	OutcomeSampleFailed HostOutcome = "sample_failed"
	OutcomeStoreFailed  HostOutcome = "store_failed"
)

// HostResult 单台主机一轮采集的结果
type HostResult struct {
	HostID   string        `json:"hostId"`
	Address  string        `json:"address"`
	Outcome  HostOutcome   `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// RunReport 一轮采集的汇总结果
type RunReport struct {
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Results   []HostResult  `json:"results"`
}

// CollectorService 采集编排服务：快照主机列表后并发采集，
// 单台主机的失败不会影响其他主机。
type CollectorService struct {
	logger        *zap.Logger
	hostService   *HostService
	metricService *MetricService
	alertService  *AlertService
	sampler       sampler.Sampler

	concurrency int
	hostTimeout time.Duration
}

func NewCollectorService(
	logger *zap.Logger,
	hostService *HostService,
	metricService *MetricService,
	alertService *AlertService,
	smp sampler.Sampler,
	cfg config.CollectConfig,
) *CollectorService {
	return &CollectorService{
		logger:        logger,
		hostService:   hostService,
		metricService: metricService,
		alertService:  alertService,
		sampler:       smp,
		concurrency:   cfg.Concurrency,
		hostTimeout:   time.Duration(cfg.HostTimeoutSeconds) * time.Second,
	}
}

// RunOnce 执行一轮采集，返回每台主机的结果
func (s *CollectorService) RunOnce(ctx context.Context) *RunReport {
	report := &RunReport{StartedAt: time.Now()}

	hosts, err := s.hostService.ListEnabled(ctx)
	if err != nil {
		s.logger.Error("获取主机列表失败", zap.Error(err))
		report.Duration = time.Since(report.StartedAt)
		return report
	}
	report.Total = len(hosts)
	if len(hosts) == 0 {
		report.Duration = time.Since(report.StartedAt)
		return report
	}

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(s.concurrency)
	for i := range hosts {
		host := hosts[i]
		p.Go(func() {
			result := s.collectOne(ctx, &host)

			mu.Lock()
			report.Results = append(report.Results, result)
			if result.Outcome == OutcomeOK {
				report.Succeeded++
			} else {
				report.Failed++
			}
			mu.Unlock()
		})
	}
	p.Wait()

	report.Duration = time.Since(report.StartedAt)
	s.logger.Info("采集完成",
		zap.Int("total", report.Total),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration))
	return report
}

// collectOne 采集单台主机：采集 -> 落库 -> 阈值评估
func (s *CollectorService) collectOne(ctx context.Context, host *models.Host) HostResult {
	hctx, cancel := context.WithTimeout(ctx, s.hostTimeout)
	defer cancel()

	start := time.Now()
	result := HostResult{HostID: host.ID, Address: host.Address}

	set, err := s.sampler.Sample(hctx, host)
	if err != nil {
		s.logger.Error("采集主机指标失败",
			zap.String("address", host.Address),
			zap.String("kind", string(host.Kind)),
			zap.Error(err))
		result.Outcome = OutcomeSampleFailed
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	if err := s.metricService.SaveSampleSet(hctx, set); err != nil {
		s.logger.Error("保存指标样本失败",
			zap.String("address", host.Address),
			zap.Error(err))
		result.Outcome = OutcomeStoreFailed
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	s.alertService.CheckSampleSet(hctx, set)

	result.Outcome = OutcomeOK
	result.Duration = time.Since(start)
	return result
}
