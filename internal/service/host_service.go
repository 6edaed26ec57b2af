package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/dushixiang/vole/internal/models"
	"github.com/dushixiang/vole/internal/repo"
	"github.com/dushixiang/vole/internal/xcrypto"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrDuplicateAddress 地址已被其他主机占用
var ErrDuplicateAddress = errors.New("主机地址已存在")

// HostService 主机注册服务
type HostService struct {
	logger   *zap.Logger
	hostRepo *repo.HostRepo
	cipher   *xcrypto.Cipher
}

func NewHostService(logger *zap.Logger, db *gorm.DB, cipher *xcrypto.Cipher) *HostService {
	return &HostService{
		logger:   logger,
		hostRepo: repo.NewHostRepo(db),
		cipher:   cipher,
	}
}

// Create 注册主机。远程主机的SSH密码在入库前加密。
func (s *HostService) Create(ctx context.Context, host *models.Host, plainPassword string) (*models.Host, error) {
	existing, err := s.hostRepo.FindByAddress(ctx, host.Address)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateAddress, host.Address)
	}

	if host.Kind == models.HostKindRemote {
		if host.Username == "" {
			return nil, fmt.Errorf("远程主机必须提供SSH用户名")
		}
		if plainPassword == "" {
			return nil, fmt.Errorf("远程主机必须提供SSH密码")
		}
		encrypted, err := s.cipher.Encrypt(plainPassword)
		if err != nil {
			return nil, fmt.Errorf("加密SSH密码失败: %w", err)
		}
		host.Password = encrypted
	}

	host.ID = uuid.NewString()
	if err := s.hostRepo.Create(ctx, host); err != nil {
		return nil, err
	}

	s.logger.Info("注册主机",
		zap.String("hostId", host.ID),
		zap.String("address", host.Address),
		zap.String("kind", string(host.Kind)))
	return host, nil
}

// Update 更新主机信息。plainPassword 非空时重新加密替换旧密码。
func (s *HostService) Update(ctx context.Context, host *models.Host, plainPassword string) error {
	current, err := s.hostRepo.FindById(ctx, host.ID)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("主机不存在: %s", host.ID)
	}

	if host.Address != current.Address {
		existing, err := s.hostRepo.FindByAddress(ctx, host.Address)
		if err != nil {
			return err
		}
		if existing != nil && existing.ID != host.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateAddress, host.Address)
		}
	}

	if plainPassword != "" {
		encrypted, err := s.cipher.Encrypt(plainPassword)
		if err != nil {
			return fmt.Errorf("加密SSH密码失败: %w", err)
		}
		host.Password = encrypted
	} else {
		host.Password = current.Password
	}

	return s.hostRepo.UpdateById(ctx, host)
}

// Delete 删除主机。历史样本和预警记录保留，仅停止后续采集。
func (s *HostService) Delete(ctx context.Context, id string) error {
	if err := s.hostRepo.DeleteById(ctx, id); err != nil {
		return err
	}
	s.logger.Info("删除主机", zap.String("hostId", id))
	return nil
}

// FindById 获取主机
func (s *HostService) FindById(ctx context.Context, id string) (*models.Host, error) {
	return s.hostRepo.FindById(ctx, id)
}

// List 列出所有主机
func (s *HostService) List(ctx context.Context) ([]models.Host, error) {
	return s.hostRepo.FindAll(ctx)
}

// ListEnabled 列出参与采集的主机
func (s *HostService) ListEnabled(ctx context.Context) ([]models.Host, error) {
	return s.hostRepo.FindEnabled(ctx)
}
