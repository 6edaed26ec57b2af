package repo

import (
	"context"

	"github.com/dushixiang/vole/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

// UserRepo 用户数据访问层
type UserRepo struct {
	base orz.Repository[models.User, string]
}

// NewUserRepo 创建仓库
func NewUserRepo(db *gorm.DB) *UserRepo {
	return &UserRepo{base: orz.NewRepository[models.User, string](db)}
}

// db 解析数据库句柄，在 Service.Transaction 内返回事务连接
func (r *UserRepo) db(ctx context.Context) *gorm.DB {
	return r.base.GetDB(ctx).WithContext(ctx)
}

// Create 创建用户
func (r *UserRepo) Create(ctx context.Context, user *models.User) error {
	return r.db(ctx).Create(user).Error
}

// FindByUsername 根据用户名获取用户
func (r *UserRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db(ctx).Where("username = ?", username).First(&user).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &user, err
}

// Count 统计用户数量
func (r *UserRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db(ctx).Model(&models.User{}).Count(&count).Error
	return count, err
}
