package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CPUSample CPU使用率样本（只追加，不更新）
type CPUSample struct {
	ID         uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	HostID     string  `gorm:"index:idx_cpu_host_ts" json:"hostId"`
	Address    string  `json:"address"` // 冗余保存，主机删除后历史仍可读
	Percent    float64 `json:"percent"` // 使用率（0-100）
	Cores      int     `json:"cores"`   // 核心数
	CapturedAt int64   `gorm:"index:idx_cpu_host_ts" json:"capturedAt"` // 采集时间（毫秒），同一轮采集内共享
	CreatedAt  int64   `json:"createdAt"`
}

func (CPUSample) TableName() string {
	return "cpu_samples"
}

func (s *CPUSample) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedAt == 0 {
		s.CreatedAt = time.Now().UnixMilli()
	}
	return nil
}

// MemorySample 内存样本
type MemorySample struct {
	ID         uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	HostID     string  `gorm:"index:idx_mem_host_ts" json:"hostId"`
	Address    string  `json:"address"`
	Total      uint64  `json:"total"`     // 字节
	Used       uint64  `json:"used"`      // 字节
	Available  uint64  `json:"available"` // 字节
	Percent    float64 `json:"percent"`
	CapturedAt int64   `gorm:"index:idx_mem_host_ts" json:"capturedAt"`
	CreatedAt  int64   `json:"createdAt"`
}

func (MemorySample) TableName() string {
	return "memory_samples"
}

func (s *MemorySample) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedAt == 0 {
		s.CreatedAt = time.Now().UnixMilli()
	}
	return nil
}

// DiskSample 磁盘样本（每个挂载点一行）
type DiskSample struct {
	ID         uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	HostID     string  `gorm:"index:idx_disk_host_ts" json:"hostId"`
	Address    string  `json:"address"`
	Device     string  `json:"device"`
	Mountpoint string  `json:"mountpoint"`
	Total      uint64  `json:"total"` // 字节
	Used       uint64  `json:"used"`  // 字节
	Free       uint64  `json:"free"`  // 字节
	Percent    float64 `json:"percent"`
	CapturedAt int64   `gorm:"index:idx_disk_host_ts" json:"capturedAt"`
	CreatedAt  int64   `json:"createdAt"`
}

func (DiskSample) TableName() string {
	return "disk_samples"
}

func (s *DiskSample) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedAt == 0 {
		s.CreatedAt = time.Now().UnixMilli()
	}
	return nil
}

// ProcessInfo 单个进程的快照
type ProcessInfo struct {
	PID           int32   `json:"pid"`
	Name          string  `json:"name"`
	Username      string  `json:"username"`
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryPercent float64 `json:"memoryPercent"`
	MemoryRSS     uint64  `json:"memoryRss"` // 字节
}

// ProcessSample 进程列表样本（按内存占用排序的Top N，JSON存储）
type ProcessSample struct {
	ID         uint                                 `gorm:"primaryKey;autoIncrement" json:"id"`
	HostID     string                               `gorm:"index:idx_proc_host_ts" json:"hostId"`
	Address    string                               `json:"address"`
	Processes  datatypes.JSONSlice[ProcessInfo]     `json:"processes"`
	CapturedAt int64                                `gorm:"index:idx_proc_host_ts" json:"capturedAt"`
	CreatedAt  int64                                `json:"createdAt"`
}

func (ProcessSample) TableName() string {
	return "process_samples"
}

func (s *ProcessSample) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedAt == 0 {
		s.CreatedAt = time.Now().UnixMilli()
	}
	return nil
}
