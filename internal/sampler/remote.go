package sampler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dushixiang/vole/internal/models"
	"github.com/dushixiang/vole/internal/xcrypto"
	probing "github.com/prometheus-community/pro-bing"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

const (
	defaultSSHPort    = 22
	defaultSSHTimeout = 10 * time.Second

	// 批量命令输出的分隔标记
	sectionMarker = "__VOLE_SECTION__"
)

// 远程采集命令，一次会话批量执行
var remoteCommands = []string{
	`top -bn1 | grep 'Cpu(s)' | sed "s/.*, *\([0-9.]*\)%* id.*/\1/"`, // CPU空闲率
	`nproc`,            // 核心数
	`free -b | grep Mem`, // 内存（字节）
	`df -B1 / | tail -1`, // 根分区磁盘（字节）
	`hostname`,
}

// RemoteSampler 远程主机指标采集器（SSH）
type RemoteSampler struct {
	logger      *zap.Logger
	cipher      *xcrypto.Cipher
	dialTimeout time.Duration
}

// NewRemoteSampler 创建远程采集器
func NewRemoteSampler(logger *zap.Logger, cipher *xcrypto.Cipher) *RemoteSampler {
	return &RemoteSampler{
		logger:      logger,
		cipher:      cipher,
		dialTimeout: defaultSSHTimeout,
	}
}

// Sample 通过SSH采集远程主机指标。
// 远程主机只采集CPU/内存/根分区磁盘，不采集进程列表。
func (s *RemoteSampler) Sample(ctx context.Context, host *models.Host) (*SampleSet, error) {
	password, err := s.cipher.Decrypt(host.Password)
	if err != nil {
		return nil, fmt.Errorf("解密SSH密码失败: %w", err)
	}

	if err := s.precheck(host.Address); err != nil {
		return nil, err
	}

	client, err := s.dial(host, password)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	command := strings.Join(remoteCommands, "; echo "+sectionMarker+"; ")
	output, err := s.run(ctx, client, command)
	if err != nil {
		return nil, err
	}

	capturedAt := time.Now().UnixMilli()
	sections := strings.Split(output, sectionMarker)
	if len(sections) < len(remoteCommands) {
		return nil, fmt.Errorf("远程命令输出不完整: 期望%d段，实际%d段", len(remoteCommands), len(sections))
	}

	set := &SampleSet{
		HostID:     host.ID,
		Address:    host.Address,
		CapturedAt: capturedAt,
	}

	// 解析失败时退化为零值，不中断采集
	cpuPercent, err := parseCPUIdle(sections[0])
	if err != nil {
		s.logger.Warn("解析远程CPU输出失败", zap.String("address", host.Address), zap.Error(err))
	}
	cores, err := parseCores(sections[1])
	if err != nil {
		s.logger.Warn("解析远程核心数失败", zap.String("address", host.Address), zap.Error(err))
	}
	set.CPU = &CPUStat{Percent: cpuPercent, Cores: cores}

	memory, err := parseFreeOutput(sections[2])
	if err != nil {
		s.logger.Warn("解析远程内存输出失败", zap.String("address", host.Address), zap.Error(err))
		memory = &MemoryStat{}
	}
	set.Memory = memory

	diskStat, err := parseDFOutput(sections[3])
	if err != nil {
		s.logger.Warn("解析远程磁盘输出失败", zap.String("address", host.Address), zap.Error(err))
	} else {
		set.Disks = []DiskStat{*diskStat}
	}

	set.Hostname = strings.TrimSpace(sections[4])

	return set, nil
}

// dial 建立SSH连接
func (s *RemoteSampler) dial(host *models.Host, password string) (*ssh.Client, error) {
	port := host.Port
	if port <= 0 {
		port = defaultSSHPort
	}
	addr := net.JoinHostPort(host.Address, strconv.Itoa(port))

	config := &ssh.ClientConfig{
		User: host.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         s.dialTimeout,
	}

	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("SSH连接失败 %s: %w", addr, err)
	}
	return client, nil
}

// run 在一个会话中执行命令，支持ctx取消
func (s *RemoteSampler) run(ctx context.Context, client *ssh.Client, command string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("创建SSH会话失败: %w", err)
	}
	defer session.Close()

	type result struct {
		output []byte
		err    error
	}
	done := make(chan result, 1)
	go func() {
		output, err := session.CombinedOutput(command)
		done <- result{output: output, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("执行远程命令失败: %w", r.err)
		}
		return string(r.output), nil
	}
}

// precheck 建连前的ICMP可达性探测，不可达的主机直接失败，省掉SSH超时等待。
// ICMP无响应可能是防火墙过滤，不视为不可达，只记录日志。
func (s *RemoteSampler) precheck(address string) error {
	pinger, err := probing.NewPinger(address)
	if err != nil {
		return fmt.Errorf("主机地址无法解析 %s: %w", address, err)
	}
	pinger.Count = 1
	pinger.Timeout = 2 * time.Second
	pinger.SetPrivileged(false)

	if err := pinger.Run(); err != nil {
		// 非特权模式失败时尝试特权模式（需要 root 权限或 CAP_NET_RAW）
		pinger.SetPrivileged(true)
		if err = pinger.Run(); err != nil {
			// 两种模式都没有发ICMP的权限时跳过探测
			if errors.Is(err, os.ErrPermission) {
				s.logger.Debug("ICMP探测不可用", zap.String("address", address), zap.Error(err))
				return nil
			}
			return fmt.Errorf("主机不可达 %s: %w", address, err)
		}
	}
	if pinger.Statistics().PacketsRecv == 0 {
		s.logger.Warn("主机ICMP探测无响应", zap.String("address", address))
	}
	return nil
}

// parseCPUIdle 解析 top 输出的空闲率，返回使用率
func parseCPUIdle(section string) (float64, error) {
	text := strings.TrimSpace(section)
	idle, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("无法解析CPU空闲率 %q: %w", text, err)
	}
	usage := 100 - idle
	if usage < 0 {
		usage = 0
	}
	return usage, nil
}

// parseCores 解析 nproc 输出
func parseCores(section string) (int, error) {
	text := strings.TrimSpace(section)
	cores, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("无法解析核心数 %q: %w", text, err)
	}
	return cores, nil
}

// parseFreeOutput 解析 `free -b | grep Mem` 的输出。
// 格式: Mem: total used free shared buff/cache available
func parseFreeOutput(section string) (*MemoryStat, error) {
	fields := strings.Fields(strings.TrimSpace(section))
	if len(fields) < 7 {
		return nil, fmt.Errorf("内存输出字段不足: %q", section)
	}

	total, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("无法解析内存总量: %w", err)
	}
	used, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("无法解析已用内存: %w", err)
	}
	available, err := strconv.ParseUint(fields[6], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("无法解析可用内存: %w", err)
	}

	stat := &MemoryStat{
		Total:     total,
		Used:      used,
		Available: available,
	}
	if total > 0 {
		stat.Percent = float64(used) / float64(total) * 100
	}
	return stat, nil
}

// parseDFOutput 解析 `df -B1 / | tail -1` 的输出。
// 格式: Filesystem 1B-blocks Used Available Use% Mounted
func parseDFOutput(section string) (*DiskStat, error) {
	fields := strings.Fields(strings.TrimSpace(section))
	if len(fields) < 6 {
		return nil, fmt.Errorf("磁盘输出字段不足: %q", section)
	}

	total, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("无法解析磁盘总量: %w", err)
	}
	used, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("无法解析磁盘已用量: %w", err)
	}
	free, err := strconv.ParseUint(fields[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("无法解析磁盘可用量: %w", err)
	}
	percent, err := strconv.ParseFloat(strings.TrimSuffix(fields[4], "%"), 64)
	if err != nil {
		return nil, fmt.Errorf("无法解析磁盘使用率: %w", err)
	}

	return &DiskStat{
		Device:     fields[0],
		Mountpoint: fields[5],
		Total:      total,
		Used:       used,
		Free:       free,
		Percent:    percent,
	}, nil
}
