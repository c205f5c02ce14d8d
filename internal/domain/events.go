package domain

import (
	"context"
	"time"
)

// ProcessedEvent marks a feed event as fully applied. The marker is written
// last, after all effects, by an atomic insert-if-absent: a duplicate
// delivery that lost the race sees the marker and stops.
type ProcessedEvent struct {
	EventID     string
	ProcessedAt time.Time
	Outcome     string
}

// Kinds of outbound notifications emitted after effects are committed.
const (
	EventTransactionPosted  = "transaction.posted"
	EventCapitalUpdated     = "capital.updated"
	EventPeriodClosed       = "period.closed"
	EventPeriodReopened     = "period.reopened"
	EventAllocationProposed = "allocation.proposed"
	EventAllocationPosted   = "allocation.posted"
	EventFaultDetected      = "fault.detected"
	EventFaultResolved      = "fault.resolved"
)

// Notification is an outbound event describing a committed state change.
type Notification struct {
	Kind    string
	At      time.Time
	Subject string            // id of the affected entity
	Fields  map[string]string // small, flat detail map
}

// Publisher delivers notifications to downstream consumers. Publishing is
// best-effort and must never roll back the committed change it describes.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}
