package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dushixiang/vole/internal/service"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// MetricHandler 指标查询与采集触发
type MetricHandler struct {
	logger           *zap.Logger
	metricService    *service.MetricService
	collectorService *service.CollectorService
}

func NewMetricHandler(logger *zap.Logger, metricService *service.MetricService, collectorService *service.CollectorService) *MetricHandler {
	return &MetricHandler{
		logger:           logger,
		metricService:    metricService,
		collectorService: collectorService,
	}
}

// Latest 获取主机最新指标
func (h *MetricHandler) Latest(c echo.Context) error {
	hostID := c.Param("id")
	latest, err := h.metricService.GetLatestMetrics(c.Request().Context(), hostID)
	if err != nil {
		h.logger.Error("查询最新指标失败", zap.String("hostId", hostID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "查询最新指标失败"})
	}
	return c.JSON(http.StatusOK, latest)
}

// Range 查询时间范围内的指标序列，默认最近1小时
func (h *MetricHandler) Range(c echo.Context) error {
	hostID := c.Param("id")

	now := time.Now().UnixMilli()
	start, err := strconv.ParseInt(c.QueryParam("start"), 10, 64)
	if err != nil || start <= 0 {
		start = now - time.Hour.Milliseconds()
	}
	end, err := strconv.ParseInt(c.QueryParam("end"), 10, 64)
	if err != nil || end <= 0 {
		end = now
	}

	metrics, err := h.metricService.GetRangeMetrics(c.Request().Context(), hostID, start, end)
	if err != nil {
		h.logger.Error("查询指标序列失败", zap.String("hostId", hostID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "查询指标序列失败"})
	}
	return c.JSON(http.StatusOK, metrics)
}

// Collect 手动触发一轮采集
func (h *MetricHandler) Collect(c echo.Context) error {
	report := h.collectorService.RunOnce(c.Request().Context())
	return c.JSON(http.StatusOK, report)
}
