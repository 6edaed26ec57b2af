package models

import (
	"time"

	"gorm.io/gorm"
)

// User 登录用户。
// Password 是 bcrypt 单向哈希，只用于校验，永远无法还原；
// 与远程主机的可还原SSH凭据是两套独立的机制。
type User struct {
	ID        string `gorm:"primaryKey" json:"id"`                 // 用户ID (UUID)
	Username  string `gorm:"uniqueIndex;not null" json:"username"` // 用户名（唯一）
	Password  string `json:"-"`                                    // bcrypt哈希
	Nickname  string `json:"nickname,omitempty"`                   // 昵称
	CreatedAt int64  `json:"createdAt"`                            // 创建时间（毫秒）
}

func (User) TableName() string {
	return "users"
}

// BeforeCreate GORM钩子：设置创建时间
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.CreatedAt == 0 {
		u.CreatedAt = time.Now().UnixMilli()
	}
	return nil
}
