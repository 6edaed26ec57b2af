package sampler

import (
	"context"
	"testing"

	"github.com/dushixiang/vole/internal/models"
)

type stubSampler struct {
	name string
}

func (s *stubSampler) Sample(ctx context.Context, host *models.Host) (*SampleSet, error) {
	return &SampleSet{HostID: host.ID, Hostname: s.name}, nil
}

func TestSelectorDispatch(t *testing.T) {
	selector := NewSelector(&stubSampler{name: "local"}, &stubSampler{name: "remote"})

	t.Run("本机类型", func(t *testing.T) {
		set, err := selector.Sample(context.Background(), &models.Host{ID: "a", Kind: models.HostKindLocal})
		if err != nil {
			t.Fatalf("采集失败: %v", err)
		}
		if set.Hostname != "local" {
			t.Errorf("应分发到本机采集器, 实际 %s", set.Hostname)
		}
	})

	t.Run("远程类型", func(t *testing.T) {
		set, err := selector.Sample(context.Background(), &models.Host{ID: "b", Kind: models.HostKindRemote})
		if err != nil {
			t.Fatalf("采集失败: %v", err)
		}
		if set.Hostname != "remote" {
			t.Errorf("应分发到远程采集器, 实际 %s", set.Hostname)
		}
	})

	t.Run("未知类型", func(t *testing.T) {
		if _, err := selector.Sample(context.Background(), &models.Host{ID: "c", Kind: "unknown"}); err == nil {
			t.Error("未知主机类型应当返回错误")
		}
	})
}
