package models

import "time"

// UnblockLog 记录解封操作的审计信息
type UnblockLog struct {
	ID            string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        string    `gorm:"type:uuid;index;not null" json:"userId"`
	ActorID       string    `gorm:"type:uuid" json:"actorId"`
	Reason        *string   `json:"reason,omitempty"`
	StrikesBefore int       `json:"strikesBefore"`
	ResetStrikes  bool      `json:"resetStrikes"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (UnblockLog) TableName() string { return "lsb_unblock_log" }
