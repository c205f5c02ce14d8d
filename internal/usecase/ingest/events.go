package ingest

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Feed event types accepted by the consumer.
const (
	TypeContributionApproved  = "contribution.approved"
	TypeRevaluationTriggered  = "revaluation.triggered"
	TypePeriodCloseRequested  = "period.close_requested"
	TypeDistributionRequested = "distribution.requested"
)

// Envelope is one feed event: a type tag, the idempotency key, and the
// type-specific payload.
type Envelope struct {
	Type    string          `json:"type"`
	EventID string          `json:"event_id"`
	Payload json.RawMessage `json:"payload"`
}

// ContributionApproved is the payload of a contribution.approved event.
// Date is the effective date; when absent, the contribution lands at the
// start of the named period.
type ContributionApproved struct {
	MemberID  uuid.UUID        `json:"member_id"`
	Category  string           `json:"category"`
	BookValue decimal.Decimal  `json:"book_value"`
	TaxValue  *decimal.Decimal `json:"tax_value,omitempty"`
	AssetRef  string           `json:"asset_ref,omitempty"`
	Date      time.Time        `json:"date,omitempty"`
	PeriodID  *uuid.UUID       `json:"period_id,omitempty"`
	Memo      string           `json:"memo,omitempty"`
}

// AssetValuation is one asset's fair value inside a revaluation event.
type AssetValuation struct {
	AssetRef  string          `json:"asset_ref"`
	FairValue decimal.Decimal `json:"fair_value"`
}

// RevaluationTriggered is the payload of a revaluation.triggered event.
type RevaluationTriggered struct {
	Valuations []AssetValuation `json:"asset_valuations"`
	Reason     string           `json:"trigger_reason"`
	Date       time.Time        `json:"date,omitempty"`
	PeriodID   *uuid.UUID       `json:"period_id,omitempty"`
}

// PeriodCloseRequested is the payload of a period.close_requested event.
type PeriodCloseRequested struct {
	PeriodID    uuid.UUID `json:"period_id"`
	InitiatedBy string    `json:"initiated_by"`
}

// DistributionRequested is the payload of a distribution.requested event.
type DistributionRequested struct {
	MemberID  uuid.UUID       `json:"member_id"`
	Amount    decimal.Decimal `json:"amount"`
	MethodRef string          `json:"method_ref,omitempty"`
	Date      time.Time       `json:"date,omitempty"`
	PeriodID  *uuid.UUID      `json:"period_id,omitempty"`
}
