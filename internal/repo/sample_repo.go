package repo

import (
	"context"

	"github.com/dushixiang/vole/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

// SampleRepo 指标样本数据访问层（所有样本表只追加）
type SampleRepo struct {
	base orz.Repository[models.CPUSample, uint]
}

// NewSampleRepo 创建仓库
func NewSampleRepo(db *gorm.DB) *SampleRepo {
	return &SampleRepo{base: orz.NewRepository[models.CPUSample, uint](db)}
}

// db 解析数据库句柄。在 Service.Transaction 内返回事务连接，
// 保证同一轮样本的多次写入落在同一个事务里。
func (r *SampleRepo) db(ctx context.Context) *gorm.DB {
	return r.base.GetDB(ctx).WithContext(ctx)
}

// CreateCPU 写入CPU样本
func (r *SampleRepo) CreateCPU(ctx context.Context, sample *models.CPUSample) error {
	return r.db(ctx).Create(sample).Error
}

// CreateMemory 写入内存样本
func (r *SampleRepo) CreateMemory(ctx context.Context, sample *models.MemorySample) error {
	return r.db(ctx).Create(sample).Error
}

// CreateDisks 批量写入磁盘样本
func (r *SampleRepo) CreateDisks(ctx context.Context, samples []models.DiskSample) error {
	if len(samples) == 0 {
		return nil
	}
	return r.db(ctx).Create(&samples).Error
}

// CreateProcess 写入进程列表样本
func (r *SampleRepo) CreateProcess(ctx context.Context, sample *models.ProcessSample) error {
	return r.db(ctx).Create(sample).Error
}

// FindLatestCPU 获取主机最新的CPU样本
func (r *SampleRepo) FindLatestCPU(ctx context.Context, hostID string) (*models.CPUSample, error) {
	var sample models.CPUSample
	err := r.db(ctx).Where("host_id = ?", hostID).
		Order("captured_at DESC").First(&sample).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &sample, err
}

// FindLatestMemory 获取主机最新的内存样本
func (r *SampleRepo) FindLatestMemory(ctx context.Context, hostID string) (*models.MemorySample, error) {
	var sample models.MemorySample
	err := r.db(ctx).Where("host_id = ?", hostID).
		Order("captured_at DESC").First(&sample).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &sample, err
}

// FindLatestDisks 获取主机最新一轮采集的磁盘样本
func (r *SampleRepo) FindLatestDisks(ctx context.Context, hostID string) ([]models.DiskSample, error) {
	var latest models.DiskSample
	err := r.db(ctx).Where("host_id = ?", hostID).
		Order("captured_at DESC").First(&latest).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// 同一轮采集的所有挂载点共享 captured_at
	var samples []models.DiskSample
	err = r.db(ctx).
		Where("host_id = ? AND captured_at = ?", hostID, latest.CapturedAt).
		Find(&samples).Error
	return samples, err
}

// FindLatestProcess 获取主机最新的进程列表样本
func (r *SampleRepo) FindLatestProcess(ctx context.Context, hostID string) (*models.ProcessSample, error) {
	var sample models.ProcessSample
	err := r.db(ctx).Where("host_id = ?", hostID).
		Order("captured_at DESC").First(&sample).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &sample, err
}

// FindCPURange 查询时间范围内的CPU样本
func (r *SampleRepo) FindCPURange(ctx context.Context, hostID string, start, end int64) ([]models.CPUSample, error) {
	var samples []models.CPUSample
	err := r.db(ctx).
		Where("host_id = ? AND captured_at >= ? AND captured_at <= ?", hostID, start, end).
		Order("captured_at ASC").Find(&samples).Error
	return samples, err
}

// FindMemoryRange 查询时间范围内的内存样本
func (r *SampleRepo) FindMemoryRange(ctx context.Context, hostID string, start, end int64) ([]models.MemorySample, error) {
	var samples []models.MemorySample
	err := r.db(ctx).
		Where("host_id = ? AND captured_at >= ? AND captured_at <= ?", hostID, start, end).
		Order("captured_at ASC").Find(&samples).Error
	return samples, err
}

// FindDiskRange 查询时间范围内的磁盘样本
func (r *SampleRepo) FindDiskRange(ctx context.Context, hostID string, start, end int64) ([]models.DiskSample, error) {
	var samples []models.DiskSample
	err := r.db(ctx).
		Where("host_id = ? AND captured_at >= ? AND captured_at <= ?", hostID, start, end).
		Order("captured_at ASC").Find(&samples).Error
	return samples, err
}

// CPUAverage 计算时间范围内的CPU平均使用率
func (r *SampleRepo) CPUAverage(ctx context.Context, hostID string, start, end int64) (float64, error) {
	var avg float64
	err := r.db(ctx).Model(&models.CPUSample{}).
		Where("host_id = ? AND captured_at >= ? AND captured_at <= ?", hostID, start, end).
		Select("COALESCE(AVG(percent), 0)").Scan(&avg).Error
	return avg, err
}

// MemoryAverage 计算时间范围内的内存平均使用率
func (r *SampleRepo) MemoryAverage(ctx context.Context, hostID string, start, end int64) (float64, error) {
	var avg float64
	err := r.db(ctx).Model(&models.MemorySample{}).
		Where("host_id = ? AND captured_at >= ? AND captured_at <= ?", hostID, start, end).
		Select("COALESCE(AVG(percent), 0)").Scan(&avg).Error
	return avg, err
}

// DiskMax 计算时间范围内的磁盘最大使用率
func (r *SampleRepo) DiskMax(ctx context.Context, hostID string, start, end int64) (float64, error) {
	var max float64
	err := r.db(ctx).Model(&models.DiskSample{}).
		Where("host_id = ? AND captured_at >= ? AND captured_at <= ?", hostID, start, end).
		Select("COALESCE(MAX(percent), 0)").Scan(&max).Error
	return max, err
}

// DeleteBefore 删除指定时间之前的样本（用于数据清理）
func (r *SampleRepo) DeleteBefore(ctx context.Context, capturedAt int64) error {
	db := r.db(ctx)
	if err := db.Where("captured_at < ?", capturedAt).Delete(&models.CPUSample{}).Error; err != nil {
		return err
	}
	if err := db.Where("captured_at < ?", capturedAt).Delete(&models.MemorySample{}).Error; err != nil {
		return err
	}
	if err := db.Where("captured_at < ?", capturedAt).Delete(&models.DiskSample{}).Error; err != nil {
		return err
	}
	return db.Where("captured_at < ?", capturedAt).Delete(&models.ProcessSample{}).Error
}
