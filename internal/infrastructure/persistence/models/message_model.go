package models

import (
	"time"

	"gorm.io/gorm"
)

// MessageModel 数据库消息模型
type MessageModel struct {
	ID             string `gorm:"primaryKey;size:64"`
	ConversationID string `gorm:"index;size:64;not null"`
	Role           string `gorm:"size:32;not null"` // user, assistant
	Content        string `gorm:"type:text;not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
	Payload        string         `gorm:"type:text"` // JSON encoded council result
}

// TableName 指定表名
func (MessageModel) TableName() string {
	return "messages"
}
