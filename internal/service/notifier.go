package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dushixiang/vole/internal/config"
	"github.com/dushixiang/vole/internal/models"
	"github.com/dushixiang/vole/internal/repo"
	"github.com/jpillora/backoff"
	"github.com/valyala/fasttemplate"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
	"gorm.io/gorm"
)

// 单个通道的最大发送次数
const maxSendAttempts = 3

// PermanentError 不可重试的发送错误（如认证失败、请求被拒绝）
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Channel 通知通道
type Channel interface {
	Name() string
	Send(ctx context.Context, record *models.AlertRecord) error
}

// Notifier 预警通知分发器
type Notifier struct {
	logger    *zap.Logger
	alertRepo *repo.AlertRepo
	channels  []Channel
}

// NewNotifier 根据配置创建通知分发器。
// 未配置的通道只记录警告并跳过，不视为错误。
func NewNotifier(logger *zap.Logger, db *gorm.DB, cfg config.AlertConfig) *Notifier {
	var channels []Channel

	if cfg.Mail != nil && cfg.Mail.Host != "" && len(cfg.Mail.To) > 0 {
		channels = append(channels, NewMailChannel(*cfg.Mail))
	} else {
		logger.Warn("邮件通道未配置，预警将不会通过邮件发送")
	}

	if cfg.Webhook != nil && cfg.Webhook.URL != "" {
		channels = append(channels, NewWebhookChannel(cfg.Webhook.URL))
	} else {
		logger.Warn("Webhook通道未配置，预警将不会通过Webhook发送")
	}

	return &Notifier{
		logger:    logger,
		alertRepo: repo.NewAlertRepo(db),
		channels:  channels,
	}
}

// Dispatch 发送预警通知。
// 记录已标记为 sent 时直接返回，重复调用不会产生重复通知；
// 任一通道成功即标记 sent，标记本身只会生效一次。
// 整个流程不在任何数据库事务内执行。
func (n *Notifier) Dispatch(ctx context.Context, alertID string) error {
	record, err := n.alertRepo.FindById(ctx, alertID)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("预警记录不存在: %s", alertID)
	}
	if record.Sent {
		return nil
	}

	if len(n.channels) == 0 {
		n.logger.Warn("未配置任何通知通道，预警保持未发送状态",
			zap.String("alertId", record.ID),
			zap.String("alertType", record.AlertType))
		return nil
	}

	delivered := false
	for _, ch := range n.channels {
		if err := n.sendWithRetry(ctx, ch, record); err != nil {
			n.logger.Error("通知通道发送失败",
				zap.String("channel", ch.Name()),
				zap.String("alertId", record.ID),
				zap.Error(err))
			continue
		}
		delivered = true
	}

	if !delivered {
		return fmt.Errorf("所有通知通道均发送失败: %s", record.ID)
	}

	// 发送成功后才标记，WHERE sent=false 保证标记只生效一次
	marked, err := n.alertRepo.MarkSent(ctx, record.ID)
	if err != nil {
		return err
	}
	if !marked {
		n.logger.Debug("预警已被其他流程标记为已发送", zap.String("alertId", record.ID))
	} else {
		n.logger.Info("预警通知发送成功",
			zap.String("alertId", record.ID),
			zap.String("address", record.Address),
			zap.String("alertType", record.AlertType))
	}
	return nil
}

// sendWithRetry 带退避的重试发送，认证类错误立即放弃
func (n *Notifier) sendWithRetry(ctx context.Context, ch Channel, record *models.AlertRecord) error {
	b := &backoff.Backoff{
		Min:    time.Second,
		Max:    10 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.Duration()):
			}
		}

		err := ch.Send(ctx, record)
		if err == nil {
			return nil
		}
		lastErr = err

		var perm *PermanentError
		if errors.As(err, &perm) {
			return err
		}

		n.logger.Warn("通知发送失败，准备重试",
			zap.String("channel", ch.Name()),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return lastErr
}

// === 邮件通道 ===

// MailChannel SMTP邮件通道
type MailChannel struct {
	cfg config.MailConfig
}

func NewMailChannel(cfg config.MailConfig) *MailChannel {
	return &MailChannel{cfg: cfg}
}

func (c *MailChannel) Name() string { return "mail" }

func (c *MailChannel) Send(ctx context.Context, record *models.AlertRecord) error {
	m := gomail.NewMessage()
	m.SetHeader("From", c.cfg.From)
	m.SetHeader("To", c.cfg.To...)
	m.SetHeader("Subject", fmt.Sprintf("服务器监控预警 - %s", record.Address))
	m.SetBody("text/plain", renderAlertText(record))

	d := gomail.NewDialer(c.cfg.Host, c.cfg.Port, c.cfg.Username, c.cfg.Password)
	if err := d.DialAndSend(m); err != nil {
		if isAuthError(err) {
			return &PermanentError{Err: err}
		}
		return err
	}
	return nil
}

// isAuthError 判断SMTP错误是否为认证失败
func isAuthError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "535") ||
		strings.Contains(msg, "authentication") ||
		strings.Contains(msg, "auth failed")
}

// === Webhook通道 ===

// 钉钉风格的文本消息模板
const webhookTextTemplate = `[服务器监控预警] {message}
主机: {address}
类型: {alertType}
时间: {time}`

// WebhookChannel Webhook通道，POST钉钉风格的JSON文本消息
type WebhookChannel struct {
	url    string
	client *http.Client
}

func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Send(ctx context.Context, record *models.AlertRecord) error {
	content := fasttemplate.New(webhookTextTemplate, "{", "}").ExecuteString(map[string]interface{}{
		"message":   record.Message,
		"address":   record.Address,
		"alertType": record.AlertType,
		"time":      time.UnixMilli(record.CreatedAt).Format("2006-01-02 15:04:05"),
	})

	payload := map[string]interface{}{
		"msgtype": "text",
		"text": map[string]string{
			"content": content,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	sendErr := fmt.Errorf("webhook响应异常: %d %s", resp.StatusCode, string(respBody))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		// 请求被拒绝（如地址失效、签名错误），重试无意义
		return &PermanentError{Err: sendErr}
	}
	return sendErr
}

// renderAlertText 渲染预警正文
func renderAlertText(record *models.AlertRecord) string {
	return fmt.Sprintf(`预警类型: %s
服务器: %s
预警时间: %s
预警信息: %s
阈值: %.2f%%  实际值: %.2f%%
级别: %s
`,
		record.AlertType,
		record.Address,
		time.UnixMilli(record.CreatedAt).Format("2006-01-02 15:04:05"),
		record.Message,
		record.Threshold,
		record.ActualValue,
		record.Level,
	)
}
