package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dushixiang/vole/internal/models"
	"github.com/dushixiang/vole/internal/repo"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// fakeChannel 记录调用次数的测试通道
type fakeChannel struct {
	calls    atomic.Int32
	failures int32 // 前N次调用返回错误
	err      error
}

func (c *fakeChannel) Name() string { return "fake" }

func (c *fakeChannel) Send(ctx context.Context, record *models.AlertRecord) error {
	n := c.calls.Add(1)
	if n <= c.failures {
		if c.err != nil {
			return c.err
		}
		return context.DeadlineExceeded
	}
	return nil
}

func newTestNotifier(db *gorm.DB, channels ...Channel) *Notifier {
	return &Notifier{
		logger:    zap.NewNop(),
		alertRepo: repo.NewAlertRepo(db),
		channels:  channels,
	}
}

func createTestAlert(t *testing.T, db *gorm.DB) *models.AlertRecord {
	t.Helper()
	record := &models.AlertRecord{
		ID:           uuid.NewString(),
		HostID:       "host-1",
		Address:      "192.168.1.10",
		AlertType:    models.AlertTypeCPU,
		Message:      "CPU使用率过高: 95.00%",
		Threshold:    80,
		ActualValue:  95,
		Level:        "info",
		WindowBucket: time.Now().UnixMilli() / time.Hour.Milliseconds(),
		CreatedAt:    time.Now().Add(-time.Second).UnixMilli(),
	}
	inserted, err := repo.NewAlertRepo(db).Create(context.Background(), record)
	if err != nil || !inserted {
		t.Fatalf("创建测试预警失败: inserted=%v err=%v", inserted, err)
	}
	return record
}

func TestDispatchIdempotent(t *testing.T) {
	db := newTestDB(t)
	ch := &fakeChannel{}
	n := newTestNotifier(db, ch)
	record := createTestAlert(t, db)
	ctx := context.Background()

	// 首次发送成功并标记
	if err := n.Dispatch(ctx, record.ID); err != nil {
		t.Fatalf("首次发送失败: %v", err)
	}

	stored, err := n.alertRepo.FindById(ctx, record.ID)
	if err != nil {
		t.Fatalf("查询预警失败: %v", err)
	}
	if !stored.Sent {
		t.Fatal("发送成功后应标记 sent=true")
	}
	if stored.SentAt == 0 {
		t.Error("发送成功后应记录 sent_at")
	}

	// 重复发送是无操作
	if err := n.Dispatch(ctx, record.ID); err != nil {
		t.Fatalf("重复发送不应报错: %v", err)
	}
	if got := ch.calls.Load(); got != 1 {
		t.Errorf("通道只应被调用1次, 实际 %d 次", got)
	}
}

func TestDispatchAllChannelsFail(t *testing.T) {
	db := newTestDB(t)
	ch := &fakeChannel{failures: 100}
	n := newTestNotifier(db, ch)
	record := createTestAlert(t, db)
	ctx := context.Background()

	if err := n.Dispatch(ctx, record.ID); err == nil {
		t.Fatal("所有通道失败时应返回错误")
	}

	stored, _ := n.alertRepo.FindById(ctx, record.ID)
	if stored.Sent {
		t.Error("发送失败时不应标记 sent=true")
	}
}

func TestDispatchRetryThenSuccess(t *testing.T) {
	db := newTestDB(t)
	ch := &fakeChannel{failures: 2} // 前两次失败，第三次成功
	n := newTestNotifier(db, ch)
	record := createTestAlert(t, db)
	ctx := context.Background()

	if err := n.Dispatch(ctx, record.ID); err != nil {
		t.Fatalf("重试后应发送成功: %v", err)
	}
	if got := ch.calls.Load(); got != 3 {
		t.Errorf("应尝试3次, 实际 %d 次", got)
	}

	stored, _ := n.alertRepo.FindById(ctx, record.ID)
	if !stored.Sent {
		t.Error("重试成功后应标记 sent=true")
	}
}

func TestDispatchPermanentErrorNoRetry(t *testing.T) {
	db := newTestDB(t)
	ch := &fakeChannel{
		failures: 100,
		err:      &PermanentError{Err: context.DeadlineExceeded},
	}
	n := newTestNotifier(db, ch)
	record := createTestAlert(t, db)

	if err := n.Dispatch(context.Background(), record.ID); err == nil {
		t.Fatal("认证类错误应返回失败")
	}
	if got := ch.calls.Load(); got != 1 {
		t.Errorf("认证类错误不应重试, 实际调用 %d 次", got)
	}
}

func TestDispatchNoChannels(t *testing.T) {
	db := newTestDB(t)
	n := newTestNotifier(db)
	record := createTestAlert(t, db)
	ctx := context.Background()

	// 未配置通道不是错误，预警保持未发送
	if err := n.Dispatch(ctx, record.ID); err != nil {
		t.Fatalf("未配置通道不应报错: %v", err)
	}

	stored, _ := n.alertRepo.FindById(ctx, record.ID)
	if stored.Sent {
		t.Error("未配置通道时预警应保持未发送")
	}
}

func TestReconcileUnsent(t *testing.T) {
	db := newTestDB(t)
	ch := &fakeChannel{}
	notifier := newTestNotifier(db, ch)

	s := newTestAlertService(t)
	// 复用同一个数据库
	s.alertRepo = repo.NewAlertRepo(db)
	s.notifier = notifier

	record := createTestAlert(t, db)
	ctx := context.Background()

	// 宽限期内不补发
	s.ReconcileUnsent(ctx, time.Hour, 50)
	if got := ch.calls.Load(); got != 0 {
		t.Fatalf("宽限期内不应补发, 实际调用 %d 次", got)
	}

	// 宽限期过后补发
	s.ReconcileUnsent(ctx, 0, 50)
	if got := ch.calls.Load(); got != 1 {
		t.Fatalf("应补发1次, 实际 %d 次", got)
	}

	stored, _ := notifier.alertRepo.FindById(ctx, record.ID)
	if !stored.Sent {
		t.Error("补发成功后应标记 sent=true")
	}
}

func TestWebhookChannel(t *testing.T) {
	record := &models.AlertRecord{
		ID:        uuid.NewString(),
		Address:   "192.168.1.10",
		AlertType: models.AlertTypeCPU,
		Message:   "CPU使用率过高: 95.00%",
		CreatedAt: time.Now().UnixMilli(),
	}

	t.Run("发送成功", func(t *testing.T) {
		var gotContentType string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotContentType = r.Header.Get("Content-Type")
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		ch := NewWebhookChannel(server.URL)
		if err := ch.Send(context.Background(), record); err != nil {
			t.Fatalf("发送失败: %v", err)
		}
		if gotContentType != "application/json" {
			t.Errorf("Content-Type错误: %s", gotContentType)
		}
	})

	t.Run("服务端5xx可重试", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		ch := NewWebhookChannel(server.URL)
		err := ch.Send(context.Background(), record)
		if err == nil {
			t.Fatal("5xx应返回错误")
		}
		if _, ok := err.(*PermanentError); ok {
			t.Error("5xx不应是不可重试错误")
		}
	})

	t.Run("请求被拒绝不可重试", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		ch := NewWebhookChannel(server.URL)
		err := ch.Send(context.Background(), record)
		if err == nil {
			t.Fatal("4xx应返回错误")
		}
		if _, ok := err.(*PermanentError); !ok {
			t.Error("4xx应是不可重试错误")
		}
	})
}
