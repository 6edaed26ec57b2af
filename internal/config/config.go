package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// AppConfig 应用配置
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Collect   CollectConfig   `yaml:"collect"`
	Threshold ThresholdConfig `yaml:"threshold"`
	Alert     AlertConfig     `yaml:"alert"`
	Report    ReportConfig    `yaml:"report"`
	JWT       JWTConfig       `yaml:"jwt"`
	SecretKey string          `yaml:"secretKey" validate:"required"` // 远程主机密码的加密密钥
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Addr string `yaml:"addr"` // 监听地址，如 :8080
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Path string `yaml:"path"` // sqlite 数据库文件路径
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"maxSize"`    // MB
	MaxBackups int    `yaml:"maxBackups"` // 保留的旧日志文件数
	MaxAge     int    `yaml:"maxAge"`     // 天数
	Compress   bool   `yaml:"compress"`
}

// CollectConfig 采集配置
type CollectConfig struct {
	IntervalSeconds    int `yaml:"intervalSeconds"`    // 采集间隔（秒）
	Concurrency        int `yaml:"concurrency"`        // 并发采集的最大主机数
	HostTimeoutSeconds int `yaml:"hostTimeoutSeconds"` // 单台主机的采集超时（秒）
	RetentionDays      int `yaml:"retentionDays"`      // 样本保留天数
}

// ThresholdConfig 阈值配置（百分比，进程启动后不可变）
type ThresholdConfig struct {
	CPU    float64 `yaml:"cpu"`
	Memory float64 `yaml:"memory"`
	Disk   float64 `yaml:"disk"`
}

// AlertConfig 预警配置
type AlertConfig struct {
	DedupWindowMinutes int             `yaml:"dedupWindowMinutes"` // 相同类型预警的去重窗口（分钟）
	ReconcileMinutes   int             `yaml:"reconcileMinutes"`   // 补发任务的执行间隔（分钟）
	ReconcileGraceSec  int             `yaml:"reconcileGraceSec"`  // 补发前的宽限期（秒）
	ReconcileBatch     int             `yaml:"reconcileBatch"`     // 单次补发的最大条数
	Mail               *MailConfig     `yaml:"mail"`               // 邮件通道（可选）
	Webhook            *WebhookConfig  `yaml:"webhook"`            // Webhook通道（可选）
}

// MailConfig SMTP邮件配置
type MailConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// WebhookConfig Webhook配置（钉钉风格的文本消息）
type WebhookConfig struct {
	URL string `yaml:"url"`
}

// ReportConfig 周报配置
type ReportConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"` // cron表达式（带秒），默认每周日 09:00
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret       string `yaml:"secret" validate:"required"`
	ExpiresHours int    `yaml:"expiresHours"`
}

// Load 从YAML文件加载配置并填充默认值
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.applyDefaults()

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}

	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "vole.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSize <= 0 {
		c.Log.MaxSize = 100
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAge <= 0 {
		c.Log.MaxAge = 7
	}
	if c.Collect.IntervalSeconds <= 0 {
		c.Collect.IntervalSeconds = 30
	}
	if c.Collect.Concurrency <= 0 {
		c.Collect.Concurrency = 20
	}
	if c.Collect.HostTimeoutSeconds <= 0 {
		c.Collect.HostTimeoutSeconds = 25
	}
	if c.Collect.RetentionDays <= 0 {
		c.Collect.RetentionDays = 30
	}
	if c.Threshold.CPU <= 0 {
		c.Threshold.CPU = 80
	}
	if c.Threshold.Memory <= 0 {
		c.Threshold.Memory = 80
	}
	if c.Threshold.Disk <= 0 {
		c.Threshold.Disk = 80
	}
	if c.Alert.DedupWindowMinutes <= 0 {
		c.Alert.DedupWindowMinutes = 60
	}
	if c.Alert.ReconcileMinutes <= 0 {
		c.Alert.ReconcileMinutes = 5
	}
	if c.Alert.ReconcileGraceSec <= 0 {
		c.Alert.ReconcileGraceSec = 120
	}
	if c.Alert.ReconcileBatch <= 0 {
		c.Alert.ReconcileBatch = 50
	}
	if c.Report.Cron == "" {
		c.Report.Cron = "0 0 9 * * 0" // 每周日 09:00
	}
	if c.JWT.ExpiresHours <= 0 {
		c.JWT.ExpiresHours = 24
	}
}
