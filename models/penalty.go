package models

import "time"

const PenaltyTable = "lsb_penalty_records"
const AccountStatusTable = "lsb_user_account_status"

// StrikeBlockThreshold 累计到该值自动封禁
const StrikeBlockThreshold = 3

type PenaltyRecord struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     string    `gorm:"type:uuid;index;not null" json:"userId"`
	LoanID     string    `gorm:"type:uuid;uniqueIndex;not null" json:"loanId"`
	DelayDays  int       `gorm:"not null" json:"delayDays"`
	Strikes    int       `gorm:"not null" json:"strikes"`
	Reason     string    `gorm:"size:500" json:"reason,omitempty"`
	AssignedBy string    `gorm:"type:uuid" json:"assignedBy"`
	CreatedAt  time.Time `json:"createdAt"`
}

// UserAccountStatus Blocked 与 Strikes >= StrikeBlockThreshold 同步，只能显式解封
type UserAccountStatus struct {
	UserID      string     `gorm:"type:uuid;primaryKey" json:"userId"`
	Strikes     int        `gorm:"not null;default:0" json:"strikes"`
	Blocked     bool       `gorm:"not null;default:false;index" json:"blocked"`
	BlockReason *string    `gorm:"size:500" json:"blockReason,omitempty"`
	BlockedAt   *time.Time `json:"blockedAt,omitempty"`
	BlockedBy   *string    `gorm:"type:uuid" json:"blockedBy,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (PenaltyRecord) TableName() string     { return PenaltyTable }
func (UserAccountStatus) TableName() string { return AccountStatusTable }
