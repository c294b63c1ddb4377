package lending

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ValidationError 输入不合法（日期区间、缺少用途等）
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// ConflictError 状态不允许该操作，或并发竞争失败
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Reason }

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Entity, e.ID) }

type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string { return "forbidden: " + e.Reason }

// UserBlockedError 账号被封禁，携带当前次数与原因
type UserBlockedError struct {
	UserID  string
	Strikes int
	Reason  string
}

func (e *UserBlockedError) Error() string {
	return fmt.Sprintf("user %s is blocked (%d strikes): %s", e.UserID, e.Strikes, e.Reason)
}

type DuplicatePenaltyError struct {
	LoanID string
}

func (e *DuplicatePenaltyError) Error() string {
	return fmt.Sprintf("penalty already assigned for loan %s", e.LoanID)
}

// IntegrityRecoverableError 工单单元数据损坏。能恢复时只记录日志，恢复失败才返回给调用方。
type IntegrityRecoverableError struct {
	TicketID string
	Detail   string
	Err      error
}

func (e *IntegrityRecoverableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("repair ticket %s: %s: %v", e.TicketID, e.Detail, e.Err)
	}
	return fmt.Sprintf("repair ticket %s: %s", e.TicketID, e.Detail)
}

func (e *IntegrityRecoverableError) Unwrap() error { return e.Err }

// UnitUnavailableError 预约指定单元时单元已不可用
type UnitUnavailableError struct {
	UnitID string
	Cause  *ConflictError
}

func (e *UnitUnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("unit %s unavailable: %s", e.UnitID, e.Cause.Reason)
	}
	return fmt.Sprintf("unit %s unavailable", e.UnitID)
}

func (e *UnitUnavailableError) Unwrap() error {
	if e.Cause == nil {
		return nil
	}
	return e.Cause
}

type AlreadyDecidedError struct {
	RequestID string
	Status    string
}

func (e *AlreadyDecidedError) Error() string {
	return fmt.Sprintf("request %s already decided (%s)", e.RequestID, e.Status)
}

func conflictf(format string, args ...any) *ConflictError {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// notFound 把 gorm 的 ErrRecordNotFound 翻译成 NotFoundError，其余错误原样返回
func notFound(err error, entity, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &NotFoundError{Entity: entity, ID: id}
	}
	return err
}

// IsConflict 包括 UnitUnavailableError / AlreadyDecidedError
func IsConflict(err error) bool {
	var ce *ConflictError
	var ue *UnitUnavailableError
	var ad *AlreadyDecidedError
	return errors.As(err, &ce) || errors.As(err, &ue) || errors.As(err, &ad)
}

// Outcome 把错误归类成稳定的标签，供日志与指标使用
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var (
		ve  *ValidationError
		nf  *NotFoundError
		fe  *ForbiddenError
		be  *UserBlockedError
		dpe *DuplicatePenaltyError
		ie  *IntegrityRecoverableError
	)
	switch {
	case errors.As(err, &ve):
		return "validation"
	case IsConflict(err):
		return "conflict"
	case errors.As(err, &nf):
		return "not_found"
	case errors.As(err, &fe):
		return "forbidden"
	case errors.As(err, &be):
		return "blocked"
	case errors.As(err, &dpe):
		return "duplicate_penalty"
	case errors.As(err, &ie):
		return "integrity"
	}
	return "error"
}
