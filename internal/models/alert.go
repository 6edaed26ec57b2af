package models

import (
	"time"

	"gorm.io/gorm"
)

// 预警类型
const (
	AlertTypeCPU    = "cpu"
	AlertTypeMemory = "memory"
	AlertTypeDisk   = "disk"
)

// AlertRecord 预警记录。
// (host_id, alert_type, window_bucket) 上的唯一索引保证并发采集时
// 同一窗口内的重复插入被拒绝，配合按 sent 历史的查询实现去重。
type AlertRecord struct {
	ID           string  `gorm:"primaryKey" json:"id"`                                  // 预警ID (UUID)
	HostID       string  `gorm:"index;uniqueIndex:ux_alert_dedup" json:"hostId"`        // 主机ID
	Address      string  `json:"address"`                                               // 主机地址（冗余）
	AlertType    string  `gorm:"index;uniqueIndex:ux_alert_dedup" json:"alertType"`     // 类型: cpu/memory/disk
	Message      string  `json:"message"`                                               // 预警内容
	Threshold    float64 `json:"threshold"`                                             // 阈值
	ActualValue  float64 `json:"actualValue"`                                           // 实际值
	Level        string  `json:"level"`                                                 // 级别: info/warning/critical
	Sent         bool    `gorm:"index" json:"sent"`                                     // 是否已成功通知
	SentAt       int64   `json:"sentAt,omitempty"`                                      // 通知成功时间（毫秒）
	WindowBucket int64   `gorm:"uniqueIndex:ux_alert_dedup" json:"-"`                   // 去重窗口编号 = createdAt / 窗口长度
	CreatedAt    int64   `gorm:"index" json:"createdAt"`                                // 创建时间（毫秒）
}

func (AlertRecord) TableName() string {
	return "alert_records"
}

// BeforeCreate GORM钩子：设置创建时间
func (a *AlertRecord) BeforeCreate(tx *gorm.DB) error {
	if a.CreatedAt == 0 {
		a.CreatedAt = time.Now().UnixMilli()
	}
	return nil
}
