package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dushixiang/vole/internal/config"
	"github.com/dushixiang/vole/internal/models"
	"github.com/dushixiang/vole/internal/repo"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ErrInvalidCredentials 用户名或密码错误
var ErrInvalidCredentials = errors.New("用户名或密码错误")

// UserService 用户与登录服务。
// 用户密码只保存 bcrypt 哈希，永远无法还原明文。
type UserService struct {
	logger   *zap.Logger
	userRepo *repo.UserRepo
	jwtCfg   config.JWTConfig
}

func NewUserService(logger *zap.Logger, db *gorm.DB, jwtCfg config.JWTConfig) *UserService {
	return &UserService{
		logger:   logger,
		userRepo: repo.NewUserRepo(db),
		jwtCfg:   jwtCfg,
	}
}

// Login 校验用户名密码，成功后签发JWT
func (s *UserService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		s.logger.Warn("登录失败", zap.String("username", username))
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      user.ID,
		"username": user.Username,
		"iat":      now.Unix(),
		"exp":      now.Add(time.Duration(s.jwtCfg.ExpiresHours) * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtCfg.Secret))
	if err != nil {
		return "", fmt.Errorf("签发令牌失败: %w", err)
	}

	s.logger.Info("用户登录成功", zap.String("username", username))
	return signed, nil
}

// Verify 校验JWT，返回claims
func (s *UserService) Verify(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("不支持的签名算法: %v", t.Header["alg"])
		}
		return []byte(s.jwtCfg.Secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("令牌无效")
	}
	return claims, nil
}

// CreateUser 创建用户，密码使用 bcrypt 哈希后入库
func (s *UserService) CreateUser(ctx context.Context, username, password, nickname string) (*models.User, error) {
	existing, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("用户名已存在: %s", username)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("密码哈希失败: %w", err)
	}

	user := &models.User{
		ID:       uuid.NewString(),
		Username: username,
		Password: string(hashed),
		Nickname: nickname,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// EnsureAdmin 首次启动时创建默认管理员
func (s *UserService) EnsureAdmin(ctx context.Context) error {
	count, err := s.userRepo.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if _, err := s.CreateUser(ctx, "admin", "admin", "管理员"); err != nil {
		return err
	}
	s.logger.Warn("已创建默认管理员账号 admin/admin，请尽快修改密码")
	return nil
}
