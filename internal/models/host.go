package models

import (
	"time"

	"gorm.io/gorm"
)

// HostKind 主机类型
type HostKind string

const (
	HostKindLocal  HostKind = "local"  // 本机，直接读取系统指标
	HostKindRemote HostKind = "remote" // 远程主机，通过SSH采集
)

// Host 被监控的主机
type Host struct {
	ID        string   `gorm:"primaryKey" json:"id"`                // 主机ID (UUID)
	Name      string   `json:"name"`                                // 显示名称
	Address   string   `gorm:"uniqueIndex;not null" json:"address"` // 地址（唯一）
	Kind      HostKind `gorm:"index;not null" json:"kind"`          // 主机类型: local/remote
	Port      int      `json:"port,omitempty"`                      // SSH端口，默认22
	Username  string   `json:"username,omitempty"`                  // SSH用户名
	Password  string   `json:"-"`                                   // SSH密码（AES-GCM密文，可还原）
	Enabled   bool     `json:"enabled"`                             // 是否参与采集
	CreatedAt int64    `json:"createdAt"`                           // 创建时间（毫秒）
	UpdatedAt int64    `json:"updatedAt" gorm:"autoUpdateTime:milli"`
}

func (Host) TableName() string {
	return "hosts"
}

// BeforeCreate GORM钩子：设置创建时间
func (h *Host) BeforeCreate(tx *gorm.DB) error {
	if h.CreatedAt == 0 {
		h.CreatedAt = time.Now().UnixMilli()
	}
	return nil
}
