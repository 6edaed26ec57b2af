package repo

import (
	"context"
	"time"

	"github.com/dushixiang/vole/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AlertRepo 预警记录数据访问层
type AlertRepo struct {
	base orz.Repository[models.AlertRecord, string]
}

// NewAlertRepo 创建仓库
func NewAlertRepo(db *gorm.DB) *AlertRepo {
	return &AlertRepo{base: orz.NewRepository[models.AlertRecord, string](db)}
}

// db 解析数据库句柄，在 Service.Transaction 内返回事务连接
func (r *AlertRepo) db(ctx context.Context) *gorm.DB {
	return r.base.GetDB(ctx).WithContext(ctx)
}

// Create 插入预警记录。
// 依赖 (host_id, alert_type, window_bucket) 唯一索引：并发采集下同一窗口
// 的重复插入不会生效，返回 false 表示被去重拒绝。
func (r *AlertRepo) Create(ctx context.Context, record *models.AlertRecord) (bool, error) {
	result := r.db(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "host_id"},
			{Name: "alert_type"},
			{Name: "window_bucket"},
		},
		DoNothing: true,
	}).Create(record)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FindById 根据ID获取预警记录
func (r *AlertRepo) FindById(ctx context.Context, id string) (*models.AlertRecord, error) {
	var record models.AlertRecord
	err := r.db(ctx).Where("id = ?", id).First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &record, err
}

// FindSentSince 查找窗口内已成功通知的同类型预警（用于去重）
func (r *AlertRepo) FindSentSince(ctx context.Context, hostID, alertType string, since int64) (*models.AlertRecord, error) {
	var record models.AlertRecord
	err := r.db(ctx).
		Where("host_id = ? AND alert_type = ? AND sent = ? AND created_at >= ?",
			hostID, alertType, true, since).
		Order("created_at DESC").First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &record, err
}

// MarkSent 标记预警已通知。WHERE sent = false 保证只有一次标记生效，
// 返回 false 表示该记录此前已被标记。
func (r *AlertRepo) MarkSent(ctx context.Context, id string) (bool, error) {
	result := r.db(ctx).Model(&models.AlertRecord{}).
		Where("id = ? AND sent = ?", id, false).
		Updates(map[string]interface{}{
			"sent":    true,
			"sent_at": time.Now().UnixMilli(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FindUnsentBefore 查找创建时间早于指定时刻且未通知成功的预警（补发用）
func (r *AlertRepo) FindUnsentBefore(ctx context.Context, before int64, limit int) ([]models.AlertRecord, error) {
	var records []models.AlertRecord
	err := r.db(ctx).
		Where("sent = ? AND created_at < ?", false, before).
		Order("created_at ASC").Limit(limit).
		Find(&records).Error
	return records, err
}

// ListByFilter 按条件分页查询预警记录
func (r *AlertRepo) ListByFilter(ctx context.Context, hostID, alertType string, startTime, endTime int64, page, pageSize int) ([]models.AlertRecord, int64, error) {
	var records []models.AlertRecord
	var total int64

	query := r.db(ctx).Model(&models.AlertRecord{})

	if hostID != "" {
		query = query.Where("host_id = ?", hostID)
	}
	if alertType != "" {
		query = query.Where("alert_type = ?", alertType)
	}
	if startTime > 0 {
		query = query.Where("created_at >= ?", startTime)
	}
	if endTime > 0 {
		query = query.Where("created_at <= ?", endTime)
	}

	// 统计总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 分页查询
	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC").
		Limit(pageSize).
		Offset(offset).
		Find(&records).Error

	return records, total, err
}

// FindSince 查找指定时间之后的所有预警（周报用）
func (r *AlertRepo) FindSince(ctx context.Context, since int64) ([]models.AlertRecord, error) {
	var records []models.AlertRecord
	err := r.db(ctx).
		Where("created_at >= ?", since).
		Order("created_at DESC").Find(&records).Error
	return records, err
}
