package models

import (
	"time"

	"gorm.io/gorm"
)

// ConversationModel 数据库会话模型
type ConversationModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	Title       string `gorm:"size:256;not null"`
	TitleSource string `gorm:"size:32;not null"` // default, user, derived, chairman
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

// TableName 指定表名
func (ConversationModel) TableName() string {
	return "conversations"
}
