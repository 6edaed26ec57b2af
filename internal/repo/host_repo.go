package repo

import (
	"context"

	"github.com/dushixiang/vole/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

// HostRepo 主机数据访问层
type HostRepo struct {
	base orz.Repository[models.Host, string]
}

// NewHostRepo 创建仓库
func NewHostRepo(db *gorm.DB) *HostRepo {
	return &HostRepo{base: orz.NewRepository[models.Host, string](db)}
}

// db 解析数据库句柄，在 Service.Transaction 内返回事务连接
func (r *HostRepo) db(ctx context.Context) *gorm.DB {
	return r.base.GetDB(ctx).WithContext(ctx)
}

// Create 创建主机
func (r *HostRepo) Create(ctx context.Context, host *models.Host) error {
	return r.db(ctx).Create(host).Error
}

// UpdateById 更新主机
func (r *HostRepo) UpdateById(ctx context.Context, host *models.Host) error {
	return r.db(ctx).Where("id = ?", host.ID).Updates(host).Error
}

// DeleteById 删除主机（历史样本保留）
func (r *HostRepo) DeleteById(ctx context.Context, id string) error {
	return r.db(ctx).Where("id = ?", id).Delete(&models.Host{}).Error
}

// FindById 根据ID获取主机
func (r *HostRepo) FindById(ctx context.Context, id string) (*models.Host, error) {
	var host models.Host
	err := r.db(ctx).Where("id = ?", id).First(&host).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &host, err
}

// FindByAddress 根据地址获取主机（地址唯一）
func (r *HostRepo) FindByAddress(ctx context.Context, address string) (*models.Host, error) {
	var host models.Host
	err := r.db(ctx).Where("address = ?", address).First(&host).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &host, err
}

// FindAll 列出所有主机
func (r *HostRepo) FindAll(ctx context.Context) ([]models.Host, error) {
	var hosts []models.Host
	err := r.db(ctx).Order("created_at ASC").Find(&hosts).Error
	return hosts, err
}

// FindEnabled 列出所有参与采集的主机
func (r *HostRepo) FindEnabled(ctx context.Context) ([]models.Host, error) {
	var hosts []models.Host
	err := r.db(ctx).Where("enabled = ?", true).Order("created_at ASC").Find(&hosts).Error
	return hosts, err
}
