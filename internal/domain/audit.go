package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConsistencyFault records a failed accounting equation check. While a
// basis world has unresolved faults, all posting into it is refused.
type ConsistencyFault struct {
	ID         uuid.UUID
	Basis      Basis
	Detail     string
	Seq        uint64 // ledger sequence at detection
	DetectedAt time.Time
	ResolvedAt *time.Time
	ResolvedBy string
	Note       string
}

// Resolved reports whether the fault has been cleared.
func (f *ConsistencyFault) Resolved() bool {
	return f.ResolvedAt != nil
}

// Audited actions on periods, calculations, and faults.
const (
	AuditActionReopen       = "REOPEN"
	AuditActionLock         = "LOCK"
	AuditActionApprove      = "APPROVE_ALLOCATION"
	AuditActionVoid         = "VOID_ALLOCATION"
	AuditActionResolveFault = "RESOLVE_FAULT"
)

// AuditRecord is an append-only trace of a privileged action: who did what
// to which period, and why.
type AuditRecord struct {
	ID       uuid.UUID
	Action   string
	PeriodID *uuid.UUID
	Actor    string
	Reason   string
	At       time.Time
}
