package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dushixiang/vole/internal/config"
	"github.com/dushixiang/vole/internal/handler"
	"github.com/dushixiang/vole/internal/models"
	"github.com/dushixiang/vole/internal/sampler"
	"github.com/dushixiang/vole/internal/scheduler"
	"github.com/dushixiang/vole/internal/service"
	"github.com/dushixiang/vole/internal/xcrypto"
	"github.com/dushixiang/vole/internal/xlog"
	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:          "vole",
		Short:        "服务器资源监控服务",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "配置文件路径")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := xlog.New(xlog.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	defer func() { _ = logger.Sync() }()

	db, err := gorm.Open(sqlite.Open(cfg.Database.Path), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("打开数据库失败: %w", err)
	}
	if err := db.AutoMigrate(
		&models.Host{},
		&models.CPUSample{},
		&models.MemorySample{},
		&models.DiskSample{},
		&models.ProcessSample{},
		&models.AlertRecord{},
		&models.User{},
	); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}

	cipher, err := xcrypto.NewCipher(cfg.SecretKey)
	if err != nil {
		return err
	}

	// 服务装配
	userService := service.NewUserService(logger, db, cfg.JWT)
	hostService := service.NewHostService(logger, db, cipher)
	metricService := service.NewMetricService(logger, db)
	notifier := service.NewNotifier(logger, db, cfg.Alert)
	dedupWindow := time.Duration(cfg.Alert.DedupWindowMinutes) * time.Minute
	alertService := service.NewAlertService(logger, db, cfg.Threshold, dedupWindow, notifier)
	reportService := service.NewReportService(logger, db, cfg.Alert.Mail)

	smp := sampler.NewSelector(
		sampler.NewLocalSampler(logger),
		sampler.NewRemoteSampler(logger, cipher),
	)
	collectorService := service.NewCollectorService(logger, hostService, metricService, alertService, smp, cfg.Collect)

	ctx := context.Background()
	if err := userService.EnsureAdmin(ctx); err != nil {
		return fmt.Errorf("初始化管理员失败: %w", err)
	}

	sched := scheduler.NewScheduler(logger, cfg, collectorService, alertService, reportService, metricService)
	if err := sched.Start(ctx); err != nil {
		return err
	}

	e := handler.NewRouter(logger, userService, hostService, metricService, alertService, collectorService, sched)
	go func() {
		logger.Info("HTTP服务启动", zap.String("addr", cfg.Server.Addr))
		if err := e.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP服务异常退出", zap.Error(err))
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("收到退出信号，开始优雅关闭")

	// 先停调度，等执行中的采集结束，再关HTTP
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP服务关闭失败", zap.Error(err))
	}

	logger.Info("服务已退出")
	return nil
}
