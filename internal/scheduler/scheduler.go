package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dushixiang/vole/internal/config"
	"github.com/dushixiang/vole/internal/service"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler 任务调度器。所有定时任务都注册在这个实例上，
// 不使用任何包级全局状态。
type Scheduler struct {
	mu      sync.RWMutex
	cron    *cron.Cron
	entries map[string]cron.EntryID // 任务名 -> cron条目

	cfg              *config.AppConfig
	collectorService *service.CollectorService
	alertService     *service.AlertService
	reportService    *service.ReportService
	metricService    *service.MetricService
	logger           *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler 创建调度器
func NewScheduler(
	logger *zap.Logger,
	cfg *config.AppConfig,
	collectorService *service.CollectorService,
	alertService *service.AlertService,
	reportService *service.ReportService,
	metricService *service.MetricService,
) *Scheduler {
	return &Scheduler{
		// 秒级调度；上一轮未结束时跳过本轮，避免任务堆积
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		entries:          make(map[string]cron.EntryID),
		cfg:              cfg,
		collectorService: collectorService,
		alertService:     alertService,
		reportService:    reportService,
		metricService:    metricService,
		logger:           logger,
	}
}

// Start 注册所有定时任务并启动调度
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	// 指标采集
	collectSpec := fmt.Sprintf("@every %ds", s.cfg.Collect.IntervalSeconds)
	if err := s.addJob("collect", collectSpec, func() {
		s.collectorService.RunOnce(s.ctx)
	}); err != nil {
		return err
	}

	// 未发送预警补发
	reconcileSpec := fmt.Sprintf("@every %dm", s.cfg.Alert.ReconcileMinutes)
	grace := time.Duration(s.cfg.Alert.ReconcileGraceSec) * time.Second
	if err := s.addJob("reconcile", reconcileSpec, func() {
		s.alertService.ReconcileUnsent(s.ctx, grace, s.cfg.Alert.ReconcileBatch)
	}); err != nil {
		return err
	}

	// 历史样本清理，每天凌晨
	if err := s.addJob("prune", "0 30 3 * * *", func() {
		_ = s.metricService.Prune(s.ctx, s.cfg.Collect.RetentionDays)
	}); err != nil {
		return err
	}

	// 周报
	if s.cfg.Report.Enabled {
		if err := s.addJob("report", s.cfg.Report.Cron, func() {
			_ = s.reportService.SendWeekly(s.ctx)
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("调度器已启动",
		zap.Int("intervalSeconds", s.cfg.Collect.IntervalSeconds),
		zap.Int("jobs", len(s.entries)))
	return nil
}

// Stop 停止调度器，等待执行中的任务结束
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}

	drainCtx := s.cron.Stop()
	select {
	case <-drainCtx.Done():
		s.logger.Info("调度器已停止")
	case <-time.After(30 * time.Second):
		s.logger.Warn("等待任务结束超时，强制退出")
	}
}

// addJob 注册任务
func (s *Scheduler) addJob(name, spec string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, err := s.cron.AddFunc(spec, fn)
	if err != nil {
		return fmt.Errorf("注册定时任务 %s 失败: %w", name, err)
	}
	s.entries[name] = entryID

	s.logger.Info("注册定时任务",
		zap.String("name", name),
		zap.String("spec", spec))
	return nil
}

// JobStatus 获取所有任务的状态
func (s *Scheduler) JobStatus() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entryMap := make(map[cron.EntryID]cron.Entry)
	for _, entry := range s.cron.Entries() {
		entryMap[entry.ID] = entry
	}

	jobs := make([]map[string]interface{}, 0, len(s.entries))
	for name, entryID := range s.entries {
		info := map[string]interface{}{
			"name": name,
		}
		if entry, exists := entryMap[entryID]; exists {
			info["nextRunTime"] = entry.Next.Format(time.RFC3339)
		}
		jobs = append(jobs, info)
	}

	return map[string]interface{}{
		"totalJobs": len(s.entries),
		"jobs":      jobs,
	}
}
