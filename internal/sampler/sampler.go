package sampler

import (
	"context"
	"fmt"

	"github.com/dushixiang/vole/internal/models"
)

// CPUStat CPU指标
type CPUStat struct {
	Percent float64 // 使用率（0-100）
	Cores   int     // 核心数
}

// MemoryStat 内存指标
type MemoryStat struct {
	Total     uint64 // 字节
	Used      uint64
	Available uint64
	Percent   float64
}

// DiskStat 单个挂载点的磁盘指标
type DiskStat struct {
	Device     string
	Mountpoint string
	Total      uint64 // 字节
	Used       uint64
	Free       uint64
	Percent    float64
}

// SampleSet 一台主机单轮采集的全部指标。
// CapturedAt 是本轮统一的采集时间，所有指标共享。
type SampleSet struct {
	HostID     string
	Address    string
	Hostname   string
	CapturedAt int64 // 毫秒
	CPU        *CPUStat
	Memory     *MemoryStat
	Disks      []DiskStat
	Processes  []models.ProcessInfo // 远程主机不采集进程列表
}

// Sampler 指标采集器
type Sampler interface {
	Sample(ctx context.Context, host *models.Host) (*SampleSet, error)
}

// Selector 按主机类型分发到对应的采集器
type Selector struct {
	local  Sampler
	remote Sampler
}

// NewSelector 创建采集器分发入口
func NewSelector(local, remote Sampler) *Selector {
	return &Selector{local: local, remote: remote}
}

// Sample 采集一台主机的指标
func (s *Selector) Sample(ctx context.Context, host *models.Host) (*SampleSet, error) {
	switch host.Kind {
	case models.HostKindLocal:
		return s.local.Sample(ctx, host)
	case models.HostKindRemote:
		return s.remote.Sample(ctx, host)
	default:
		return nil, fmt.Errorf("未知的主机类型: %s", host.Kind)
	}
}
