// models/item_unit.go
package models

import "time"

const ItemTable = "lsb_items"
const UnitTable = "lsb_units"

// LoanPolicy 决定物品允许的借用方式
type LoanPolicy string

const (
	PolicyExternalOnly LoanPolicy = "external_only"
	PolicyInternalOnly LoanPolicy = "internal_only"
	PolicyEither       LoanPolicy = "either"
)

func (p LoanPolicy) Valid() bool {
	switch p {
	case PolicyExternalOnly, PolicyInternalOnly, PolicyEither:
		return true
	}
	return false
}

// UnitState 单件实物的可用状态
type UnitState string

const (
	UnitAvailable UnitState = "available"
	UnitReserved  UnitState = "reserved"
	UnitLoaned    UnitState = "loaned"
	UnitInRepair  UnitState = "in_repair"
)

type Item struct {
	ID         string     `gorm:"type:uuid;primaryKey" json:"id"`
	Name       string     `gorm:"size:200;not null" json:"name"`
	Category   string     `gorm:"size:120;index" json:"category,omitempty"`
	CourseTags string     `gorm:"size:500" json:"courseTags,omitempty"` // 逗号分隔
	LoanPolicy LoanPolicy `gorm:"size:20;not null;default:'either'" json:"loanPolicy"`
	TotalUnits int        `gorm:"not null;default:0" json:"totalUnits"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`

	Units []Unit `gorm:"foreignKey:ItemID;constraint:OnDelete:CASCADE" json:"units,omitempty"`
}

// Unit 物品下的一件实物。三个指针至多一个非空，且与 State 一致。
type Unit struct {
	ID                string    `gorm:"type:uuid;primaryKey" json:"id"`
	ItemID            string    `gorm:"type:uuid;index;not null" json:"itemId"`
	Code              string    `gorm:"size:120;uniqueIndex;not null" json:"code"`
	State             UnitState `gorm:"size:20;not null;default:'available';index;check:chk_unit_state,state IN ('available','reserved','loaned','in_repair')" json:"state"`
	ReservedRequestID *string   `gorm:"type:uuid;index" json:"reservedRequestId,omitempty"`
	CurrentLoanID     *string   `gorm:"type:uuid;index" json:"currentLoanId,omitempty"`
	RepairTicketID    *string   `gorm:"type:uuid;index" json:"repairTicketId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func (Item) TableName() string { return ItemTable }
func (Unit) TableName() string { return UnitTable }
