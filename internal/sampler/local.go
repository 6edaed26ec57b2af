package sampler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dushixiang/vole/internal/models"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	gohost "github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// 进程列表只保留内存占用最高的前N个
const topProcessCount = 20

// LocalSampler 本机指标采集器
type LocalSampler struct {
	logger *zap.Logger
}

// NewLocalSampler 创建本机采集器
func NewLocalSampler(logger *zap.Logger) *LocalSampler {
	return &LocalSampler{logger: logger}
}

// Sample 采集本机指标
func (s *LocalSampler) Sample(ctx context.Context, host *models.Host) (*SampleSet, error) {
	capturedAt := time.Now().UnixMilli()

	percents, err := cpu.PercentWithContext(ctx, time.Second, false)
	if err != nil || len(percents) == 0 {
		return nil, fmt.Errorf("采集CPU使用率失败: %w", err)
	}
	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		s.logger.Warn("获取CPU核心数失败", zap.Error(err))
		cores = 0
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("采集内存信息失败: %w", err)
	}

	disks, err := s.sampleDisks(ctx)
	if err != nil {
		return nil, err
	}

	processes, err := s.sampleProcesses(ctx)
	if err != nil {
		return nil, err
	}

	hostname := ""
	if info, err := gohost.InfoWithContext(ctx); err == nil {
		hostname = info.Hostname
	}

	return &SampleSet{
		HostID:     host.ID,
		Address:    host.Address,
		Hostname:   hostname,
		CapturedAt: capturedAt,
		CPU: &CPUStat{
			Percent: percents[0],
			Cores:   cores,
		},
		Memory: &MemoryStat{
			Total:     vm.Total,
			Used:      vm.Used,
			Available: vm.Available,
			Percent:   vm.UsedPercent,
		},
		Disks:     disks,
		Processes: processes,
	}, nil
}

func (s *LocalSampler) sampleDisks(ctx context.Context) ([]DiskStat, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("获取磁盘分区失败: %w", err)
	}

	disks := make([]DiskStat, 0, len(partitions))
	for _, p := range partitions {
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			// 个别挂载点不可读（如光驱、权限不足）时跳过
			s.logger.Warn("读取挂载点使用率失败",
				zap.String("mountpoint", p.Mountpoint),
				zap.Error(err))
			continue
		}
		disks = append(disks, DiskStat{
			Device:     p.Device,
			Mountpoint: p.Mountpoint,
			Total:      usage.Total,
			Used:       usage.Used,
			Free:       usage.Free,
			Percent:    usage.UsedPercent,
		})
	}
	return disks, nil
}

func (s *LocalSampler) sampleProcesses(ctx context.Context) ([]models.ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取进程列表失败: %w", err)
	}

	infos := make([]models.ProcessInfo, 0, len(procs))
	for _, p := range procs {
		memPercent, err := p.MemoryPercentWithContext(ctx)
		if err != nil {
			// 进程可能已退出或无权限读取，忽略
			continue
		}

		info := models.ProcessInfo{
			PID:           p.Pid,
			MemoryPercent: float64(memPercent),
		}
		if name, err := p.NameWithContext(ctx); err == nil {
			info.Name = name
		}
		if username, err := p.UsernameWithContext(ctx); err == nil {
			info.Username = username
		}
		if cpuPercent, err := p.CPUPercentWithContext(ctx); err == nil {
			info.CPUPercent = cpuPercent
		}
		if memInfo, err := p.MemoryInfoWithContext(ctx); err == nil && memInfo != nil {
			info.MemoryRSS = memInfo.RSS
		}
		infos = append(infos, info)
	}

	// 按内存占用降序，只保留前N个
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].MemoryPercent > infos[j].MemoryPercent
	})
	if len(infos) > topProcessCount {
		infos = infos[:topProcessCount]
	}
	return infos, nil
}
