package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dushixiang/vole/internal/service"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AuthHandler 登录与认证
type AuthHandler struct {
	logger      *zap.Logger
	userService *service.UserService
}

func NewAuthHandler(logger *zap.Logger, userService *service.UserService) *AuthHandler {
	return &AuthHandler{logger: logger, userService: userService}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login 用户登录，返回JWT
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "请求参数错误"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	token, err := h.userService.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "用户名或密码错误"})
		}
		h.logger.Error("登录处理失败", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "登录失败"})
	}

	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

// JWTMiddleware 校验 Authorization: Bearer <token>
func (h *AuthHandler) JWTMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		auth := c.Request().Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if token == "" || token == auth {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "未登录"})
		}

		claims, err := h.userService.Verify(token)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "登录已过期"})
		}

		c.Set("username", claims["username"])
		return next(c)
	}
}
