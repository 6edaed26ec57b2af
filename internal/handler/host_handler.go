package handler

import (
	"errors"
	"net/http"

	"github.com/dushixiang/vole/internal/models"
	"github.com/dushixiang/vole/internal/service"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// HostHandler 主机管理
type HostHandler struct {
	logger      *zap.Logger
	hostService *service.HostService
}

func NewHostHandler(logger *zap.Logger, hostService *service.HostService) *HostHandler {
	return &HostHandler{logger: logger, hostService: hostService}
}

// HostRequest 主机创建/更新请求
type HostRequest struct {
	Name     string `json:"name" validate:"required"`
	Address  string `json:"address" validate:"required"`
	Kind     string `json:"kind" validate:"required,oneof=local remote"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"` // 明文，仅在请求中出现，入库前加密
	Enabled  *bool  `json:"enabled"`
}

// Create 注册主机
func (h *HostHandler) Create(c echo.Context) error {
	var req HostRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "请求参数错误"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	host := &models.Host{
		Name:     req.Name,
		Address:  req.Address,
		Kind:     models.HostKind(req.Kind),
		Port:     req.Port,
		Username: req.Username,
		Enabled:  true,
	}
	if req.Enabled != nil {
		host.Enabled = *req.Enabled
	}

	created, err := h.hostService.Create(c.Request().Context(), host, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrDuplicateAddress) {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		h.logger.Error("注册主机失败", zap.String("address", req.Address), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, created)
}

// Update 更新主机
func (h *HostHandler) Update(c echo.Context) error {
	id := c.Param("id")

	var req HostRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "请求参数错误"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	host := &models.Host{
		ID:       id,
		Name:     req.Name,
		Address:  req.Address,
		Kind:     models.HostKind(req.Kind),
		Port:     req.Port,
		Username: req.Username,
		Enabled:  true,
	}
	if req.Enabled != nil {
		host.Enabled = *req.Enabled
	}

	if err := h.hostService.Update(c.Request().Context(), host, req.Password); err != nil {
		if errors.Is(err, service.ErrDuplicateAddress) {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		h.logger.Error("更新主机失败", zap.String("hostId", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Delete 删除主机
func (h *HostHandler) Delete(c echo.Context) error {
	id := c.Param("id")
	if err := h.hostService.Delete(c.Request().Context(), id); err != nil {
		h.logger.Error("删除主机失败", zap.String("hostId", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "删除主机失败"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Get 获取主机详情
func (h *HostHandler) Get(c echo.Context) error {
	id := c.Param("id")
	host, err := h.hostService.FindById(c.Request().Context(), id)
	if err != nil {
		h.logger.Error("查询主机失败", zap.String("hostId", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "查询主机失败"})
	}
	if host == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "主机不存在"})
	}
	return c.JSON(http.StatusOK, host)
}

// List 列出所有主机
func (h *HostHandler) List(c echo.Context) error {
	hosts, err := h.hostService.List(c.Request().Context())
	if err != nil {
		h.logger.Error("查询主机列表失败", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "查询主机列表失败"})
	}
	return c.JSON(http.StatusOK, hosts)
}
