package models

import "time"

const RepairTicketTable = "lsb_repair_tickets"
const RepairTicketUnitTable = "lsb_repair_ticket_units"

type RepairStatus string

const (
	RepairInProgress RepairStatus = "in_progress"
	RepairCompleted  RepairStatus = "completed"
	RepairCancelled  RepairStatus = "cancelled"
)

type RepairPriority string

const (
	PriorityLow    RepairPriority = "low"
	PriorityNormal RepairPriority = "normal"
	PriorityHigh   RepairPriority = "high"
	PriorityUrgent RepairPriority = "urgent"
)

func (p RepairPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type RepairTicket struct {
	ID          string         `gorm:"type:uuid;primaryKey" json:"id"`
	ItemID      string         `gorm:"type:uuid;index;not null" json:"itemId"`
	Status      RepairStatus   `gorm:"size:20;not null;default:'in_progress';index" json:"status"`
	Priority    RepairPriority `gorm:"size:20;not null;default:'normal'" json:"priority"`
	Description string         `gorm:"size:1000" json:"description,omitempty"`

	// 旧版本把单元 ID 列表序列化成文本存在工单里，只在关单恢复时读取
	LegacyUnitIDs string `gorm:"column:legacy_unit_ids;type:text" json:"-"`

	OpenedBy  string     `gorm:"type:uuid" json:"openedBy,omitempty"`
	ClosedBy  *string    `gorm:"type:uuid" json:"closedBy,omitempty"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`

	Units []RepairTicketUnit `gorm:"foreignKey:TicketID;constraint:OnDelete:CASCADE" json:"units,omitempty"`
}

// RepairTicketUnit 工单与单元的规范化关联
type RepairTicketUnit struct {
	TicketID string `gorm:"type:uuid;primaryKey" json:"ticketId"`
	UnitID   string `gorm:"type:uuid;primaryKey;index" json:"unitId"`
}

func (RepairTicket) TableName() string     { return RepairTicketTable }
func (RepairTicketUnit) TableName() string { return RepairTicketUnitTable }
