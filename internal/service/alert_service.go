package service

import (
	"context"
	"fmt"
	"time"

	"github.com/dushixiang/vole/internal/config"
	"github.com/dushixiang/vole/internal/models"
	"github.com/dushixiang/vole/internal/repo"
	"github.com/dushixiang/vole/internal/sampler"
	"github.com/go-orz/orz"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AlertCandidate 阈值评估产生的预警候选
type AlertCandidate struct {
	HostID    string
	Address   string
	AlertType string
	Message   string
	Value     float64
	Threshold float64
}

// AlertService 预警服务
type AlertService struct {
	*orz.Service
	alertRepo   *repo.AlertRepo
	thresholds  config.ThresholdConfig
	dedupWindow time.Duration
	notifier    *Notifier
	logger      *zap.Logger

	now func() time.Time
}

func NewAlertService(logger *zap.Logger, db *gorm.DB, thresholds config.ThresholdConfig, dedupWindow time.Duration, notifier *Notifier) *AlertService {
	return &AlertService{
		Service:     orz.NewService(db),
		alertRepo:   repo.NewAlertRepo(db),
		thresholds:  thresholds,
		dedupWindow: dedupWindow,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
	}
}

// Evaluate 根据阈值评估一轮采集结果，产生预警候选。
// 判定是严格大于：恰好等于阈值不算超限。缺失的指标种类直接跳过。
func (s *AlertService) Evaluate(set *sampler.SampleSet) []AlertCandidate {
	var candidates []AlertCandidate

	if set.CPU != nil && set.CPU.Percent > s.thresholds.CPU {
		candidates = append(candidates, AlertCandidate{
			HostID:    set.HostID,
			Address:   set.Address,
			AlertType: models.AlertTypeCPU,
			Message:   fmt.Sprintf("CPU使用率过高: %.2f%%", set.CPU.Percent),
			Value:     set.CPU.Percent,
			Threshold: s.thresholds.CPU,
		})
	}

	if set.Memory != nil && set.Memory.Percent > s.thresholds.Memory {
		candidates = append(candidates, AlertCandidate{
			HostID:    set.HostID,
			Address:   set.Address,
			AlertType: models.AlertTypeMemory,
			Message:   fmt.Sprintf("内存使用率过高: %.2f%%", set.Memory.Percent),
			Value:     set.Memory.Percent,
			Threshold: s.thresholds.Memory,
		})
	}

	for _, d := range set.Disks {
		if d.Percent > s.thresholds.Disk {
			candidates = append(candidates, AlertCandidate{
				HostID:    set.HostID,
				Address:   set.Address,
				AlertType: models.AlertTypeDisk,
				Message:   fmt.Sprintf("磁盘 %s 使用率过高: %.2f%%", d.Device, d.Percent),
				Value:     d.Percent,
				Threshold: s.thresholds.Disk,
			})
		}
	}

	return candidates
}

// CheckSampleSet 评估采集结果并创建预警（带去重），返回实际新建的记录。
// 新建的预警会异步触发通知发送。
func (s *AlertService) CheckSampleSet(ctx context.Context, set *sampler.SampleSet) []*models.AlertRecord {
	candidates := s.Evaluate(set)

	var created []*models.AlertRecord
	for _, c := range candidates {
		record, err := s.CreateAlert(ctx, c)
		if err != nil {
			s.logger.Error("创建预警记录失败",
				zap.String("hostId", c.HostID),
				zap.String("alertType", c.AlertType),
				zap.Error(err))
			continue
		}
		if record == nil {
			continue
		}
		created = append(created, record)

		if s.notifier != nil {
			go s.dispatchAsync(record.ID)
		}
	}
	return created
}

// CreateAlert 创建一条预警记录，返回 nil 表示被去重抑制。
// 去重规则：窗口内已有发送成功的同类型预警则抑制；
// 并发场景下由 (host_id, alert_type, window_bucket) 唯一索引兜底。
func (s *AlertService) CreateAlert(ctx context.Context, c AlertCandidate) (*models.AlertRecord, error) {
	now := s.now()
	windowStart := now.Add(-s.dedupWindow).UnixMilli()

	existing, err := s.alertRepo.FindSentSince(ctx, c.HostID, c.AlertType, windowStart)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.logger.Debug("窗口内已发送过同类型预警，跳过",
			zap.String("hostId", c.HostID),
			zap.String("alertType", c.AlertType),
			zap.String("lastAlertId", existing.ID))
		return nil, nil
	}

	record := &models.AlertRecord{
		ID:           uuid.NewString(),
		HostID:       c.HostID,
		Address:      c.Address,
		AlertType:    c.AlertType,
		Message:      c.Message,
		Threshold:    c.Threshold,
		ActualValue:  c.Value,
		Level:        calculateLevel(c.Value, c.Threshold),
		WindowBucket: now.UnixMilli() / s.dedupWindow.Milliseconds(),
		CreatedAt:    now.UnixMilli(),
	}

	inserted, err := s.alertRepo.Create(ctx, record)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// 并发采集下同窗口的重复插入被唯一索引拒绝
		s.logger.Debug("同窗口预警已存在，插入被拒绝",
			zap.String("hostId", c.HostID),
			zap.String("alertType", c.AlertType))
		return nil, nil
	}

	s.logger.Info("创建预警记录",
		zap.String("alertId", record.ID),
		zap.String("address", record.Address),
		zap.String("alertType", record.AlertType),
		zap.Float64("value", record.ActualValue),
		zap.Float64("threshold", record.Threshold))
	return record, nil
}

// dispatchAsync 异步发送通知，带恢复保护和独立超时
func (s *AlertService) dispatchAsync(alertID string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("发送预警通知panic", zap.Any("recover", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.notifier.Dispatch(ctx, alertID); err != nil {
		// 发送失败不影响预警记录，补发任务会重试
		s.logger.Error("发送预警通知失败", zap.String("alertId", alertID), zap.Error(err))
	}
}

// ReconcileUnsent 补发通知：重新发送宽限期之前创建且仍未发送成功的预警
func (s *AlertService) ReconcileUnsent(ctx context.Context, grace time.Duration, batch int) {
	if s.notifier == nil {
		return
	}

	before := s.now().Add(-grace).UnixMilli()
	records, err := s.alertRepo.FindUnsentBefore(ctx, before, batch)
	if err != nil {
		s.logger.Error("查询未发送预警失败", zap.Error(err))
		return
	}
	if len(records) == 0 {
		return
	}

	sent := 0
	for _, record := range records {
		if err := s.notifier.Dispatch(ctx, record.ID); err != nil {
			s.logger.Error("补发预警通知失败", zap.String("alertId", record.ID), zap.Error(err))
			continue
		}
		sent++
	}
	s.logger.Info("预警补发完成", zap.Int("total", len(records)), zap.Int("sent", sent))
}

// ListAlerts 按条件分页查询预警记录
func (s *AlertService) ListAlerts(ctx context.Context, hostID, alertType string, startTime, endTime int64, page, pageSize int) ([]models.AlertRecord, int64, error) {
	return s.alertRepo.ListByFilter(ctx, hostID, alertType, startTime, endTime, page, pageSize)
}

// calculateLevel 根据超限幅度计算预警级别
func calculateLevel(value, threshold float64) string {
	diff := value - threshold
	switch {
	case diff < 20:
		return "info"
	case diff < 50:
		return "warning"
	default:
		return "critical"
	}
}
