package handler

import (
	"net/http"
	"strconv"

	"github.com/dushixiang/vole/internal/service"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AlertHandler 预警记录查询
type AlertHandler struct {
	logger       *zap.Logger
	alertService *service.AlertService
}

func NewAlertHandler(logger *zap.Logger, alertService *service.AlertService) *AlertHandler {
	return &AlertHandler{logger: logger, alertService: alertService}
}

// List 分页查询预警记录
func (h *AlertHandler) List(c echo.Context) error {
	page, err := strconv.Atoi(c.QueryParam("page"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.QueryParam("pageSize"))
	if err != nil || pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}

	hostID := c.QueryParam("hostId")
	alertType := c.QueryParam("type")
	startTime, _ := strconv.ParseInt(c.QueryParam("start"), 10, 64)
	endTime, _ := strconv.ParseInt(c.QueryParam("end"), 10, 64)

	records, total, err := h.alertService.ListAlerts(c.Request().Context(), hostID, alertType, startTime, endTime, page, pageSize)
	if err != nil {
		h.logger.Error("查询预警记录失败", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "查询预警记录失败"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"items":    records,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}
