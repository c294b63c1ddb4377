// models/request_loan.go
package models

import "time"

const RequestTable = "lsb_requests"
const LoanTable = "lsb_loans"

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// UsageType 仅 either 策略的物品需要申请人声明
type UsageType string

const (
	UsageInternal UsageType = "internal"
	UsageExternal UsageType = "external"
)

type LoanStatus string

const (
	LoanActive   LoanStatus = "active"
	LoanReturned LoanStatus = "returned"
)

type Request struct {
	ID        string        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string        `gorm:"type:uuid;index;not null" json:"userId"`
	ItemID    string        `gorm:"type:uuid;index;not null" json:"itemId"`
	UnitID    *string       `gorm:"type:uuid;index" json:"unitId,omitempty"`
	StartDate time.Time     `gorm:"not null" json:"startDate"`
	EndDate   time.Time     `gorm:"not null" json:"endDate"`
	UsageType *UsageType    `gorm:"size:20" json:"usageType,omitempty"`
	Status    RequestStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	Note      string        `gorm:"size:500" json:"note,omitempty"`

	DecidedBy    *string    `gorm:"type:uuid" json:"decidedBy,omitempty"`
	DecidedAt    *time.Time `json:"decidedAt,omitempty"`
	DecisionNote string     `gorm:"size:500" json:"decisionNote,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Loan struct {
	ID     string  `gorm:"type:uuid;primaryKey" json:"id"`
	ItemID string  `gorm:"type:uuid;index;not null" json:"itemId"`
	UnitID *string `gorm:"type:uuid;index" json:"unitId,omitempty"`

	BorrowerID   string `gorm:"type:uuid;index;not null" json:"borrowerId"`
	BorrowerName string `gorm:"size:255" json:"borrowerName"` // 冗余展示名，仅供历史查询

	CheckoutDate time.Time  `gorm:"index;not null" json:"checkoutDate"`
	DueDate      time.Time  `gorm:"index;not null" json:"dueDate"`
	Status       LoanStatus `gorm:"size:20;not null;default:'active';index" json:"status"`
	RequestID    *string    `gorm:"type:uuid;uniqueIndex" json:"requestId,omitempty"`

	ReturnedAt *time.Time `gorm:"index" json:"returnedAt,omitempty"`
	ReturnedBy *string    `gorm:"type:uuid" json:"returnedBy,omitempty"`

	Note      string    `gorm:"size:255" json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Request) TableName() string { return RequestTable }
func (Loan) TableName() string    { return LoanTable }
