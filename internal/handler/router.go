package handler

import (
	"net/http"

	"github.com/dushixiang/vole/internal/scheduler"
	"github.com/dushixiang/vole/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Validator echo请求校验器
type Validator struct {
	validate *validator.Validate
}

func (v *Validator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// NewRouter 构建HTTP路由
func NewRouter(
	logger *zap.Logger,
	userService *service.UserService,
	hostService *service.HostService,
	metricService *service.MetricService,
	alertService *service.AlertService,
	collectorService *service.CollectorService,
	sched *scheduler.Scheduler,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &Validator{validate: validator.New()}
	e.Use(middleware.Recover())

	authHandler := NewAuthHandler(logger, userService)
	hostHandler := NewHostHandler(logger, hostService)
	metricHandler := NewMetricHandler(logger, metricService, collectorService)
	alertHandler := NewAlertHandler(logger, alertService)

	api := e.Group("/api")
	api.POST("/login", authHandler.Login)
	api.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	secured := api.Group("", authHandler.JWTMiddleware)

	secured.GET("/hosts", hostHandler.List)
	secured.POST("/hosts", hostHandler.Create)
	secured.GET("/hosts/:id", hostHandler.Get)
	secured.PUT("/hosts/:id", hostHandler.Update)
	secured.DELETE("/hosts/:id", hostHandler.Delete)

	secured.GET("/hosts/:id/metrics/latest", metricHandler.Latest)
	secured.GET("/hosts/:id/metrics/range", metricHandler.Range)
	secured.POST("/collect", metricHandler.Collect)

	secured.GET("/alerts", alertHandler.List)

	secured.GET("/scheduler/status", func(c echo.Context) error {
		return c.JSON(http.StatusOK, sched.JobStatus())
	})

	return e
}
