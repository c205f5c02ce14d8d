package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/coopledger/coopledger/internal/domain"
	"github.com/coopledger/coopledger/internal/logging"
	"github.com/coopledger/coopledger/internal/metrics"
	"github.com/coopledger/coopledger/internal/usecase/capital"
)

// Capital is the slice of the capital service the consumer applies member
// events through.
type Capital interface {
	ApplyContribution(ctx context.Context, input capital.ContributionInput) (*capital.ContributionResult, error)
	Revalue(ctx context.Context, input capital.RevaluationInput) (*capital.RevaluationResult, error)
	Distribute(ctx context.Context, input capital.DistributionInput) (*capital.DistributionResult, error)
}

// Closer starts or resumes a period close.
type Closer interface {
	Close(ctx context.Context, periodID uuid.UUID) (*domain.CloseState, error)
}

// Summary counts what one consumer run did with the feed.
type Summary struct {
	Processed  int // applied in this run
	Duplicates int // already processed, skipped
	Rejected   int // refused by a domain rule, recorded and never retried
}

// Consumer applies an ordered, at-least-once event feed to the engine.
// Every event is idempotent on its event id: the processed-events record is
// checked first and written last, and each posting inside an event is
// additionally keyed per basis world, so a redelivery after a partial
// failure completes the leftovers instead of doubling the rest.
type Consumer struct {
	EventRepo     domain.EventRepository
	PatronageRepo domain.PatronageRepository
	PeriodRepo    domain.PeriodRepository
	Capital       Capital
	Closer        Closer
	Metrics       metrics.Recorder

	// MaxAttempts bounds retries of transient store errors per event.
	// Domain rule failures are never retried.
	MaxAttempts int
	Backoff     time.Duration
	Now         func() time.Time
}

// NewConsumer creates a new Consumer instance.
func NewConsumer(store domain.Store, capitalService Capital, closer Closer, recorder metrics.Recorder) *Consumer {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Consumer{
		EventRepo:     store.Events(),
		PatronageRepo: store.Patronage(),
		PeriodRepo:    store.Periods(),
		Capital:       capitalService,
		Closer:        closer,
		Metrics:       recorder,
		MaxAttempts:   3,
		Backoff:       100 * time.Millisecond,
		Now:           time.Now,
	}
}

// Run drains the feed. It stops early only when an event keeps failing on
// something retryable or a basis world is halted; everything already
// processed stays durable, so feeding the same input again resumes where
// the run stopped.
func (c *Consumer) Run(ctx context.Context, feed Feed) (*Summary, error) {
	log := logging.FromContext(ctx)
	summary := &Summary{}
	for {
		envelope, err := feed.Next(ctx)
		if errors.Is(err, io.EOF) {
			return summary, nil
		}
		if err != nil {
			return summary, err
		}
		if err := c.consume(ctx, envelope, summary, log); err != nil {
			return summary, err
		}
	}
}

func (c *Consumer) consume(ctx context.Context, envelope *Envelope, summary *Summary, log *slog.Logger) error {
	if envelope.EventID == "" {
		return errors.New("feed event without an event_id cannot be deduplicated")
	}

	done, err := c.EventRepo.IsProcessed(ctx, envelope.EventID)
	if err != nil {
		return err
	}
	if done {
		summary.Duplicates++
		log.Info("skipping duplicate event", "event_id", envelope.EventID, "type", envelope.Type)
		return nil
	}

	start := c.Now()
	outcome, err := c.applyWithRetry(ctx, envelope)
	c.Metrics.Observe(ctx, "ingest."+envelope.Type, err == nil, time.Since(start))
	rejected := false
	if err != nil {
		var rejection *rejectionError
		if !errors.As(err, &rejection) {
			return fmt.Errorf("event %s (%s): %w", envelope.EventID, envelope.Type, err)
		}
		// A domain rule refused the event. Redelivering it would refuse
		// again, so the rejection is recorded as its final outcome.
		rejected = true
		outcome = "rejected: " + rejection.Error()
		log.Warn("event rejected", "event_id", envelope.EventID, "type", envelope.Type, "reason", rejection.Error())
	}

	inserted, err := c.EventRepo.MarkProcessed(ctx, &domain.ProcessedEvent{
		EventID:     envelope.EventID,
		ProcessedAt: c.Now(),
		Outcome:     outcome,
	})
	if err != nil {
		return err
	}
	switch {
	case !inserted:
		summary.Duplicates++
	case rejected:
		summary.Rejected++
	default:
		summary.Processed++
	}
	return nil
}

// applyWithRetry dispatches the event, retrying transient failures with a
// linear backoff. Domain rule failures come back as rejections immediately;
// a halted world aborts the run so the fault gets attention.
func (c *Consumer) applyWithRetry(ctx context.Context, envelope *Envelope) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.MaxAttempts; attempt++ {
		outcome, err := c.apply(ctx, envelope)
		if err == nil {
			return outcome, nil
		}
		if errors.Is(err, domain.ErrHalted) || errors.Is(err, domain.ErrConsistency) {
			return "", err
		}
		if isRejection(err) {
			return "", &rejectionError{cause: err}
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt) * c.Backoff):
		}
	}
	return "", fmt.Errorf("after %d attempts: %w", c.MaxAttempts, lastErr)
}

func (c *Consumer) apply(ctx context.Context, envelope *Envelope) (string, error) {
	switch envelope.Type {
	case TypeContributionApproved:
		return c.applyContribution(ctx, envelope)
	case TypeRevaluationTriggered:
		return c.applyRevaluation(ctx, envelope)
	case TypePeriodCloseRequested:
		return c.applyClose(ctx, envelope)
	case TypeDistributionRequested:
		return c.applyDistribution(ctx, envelope)
	}
	return "", &rejectionError{cause: fmt.Errorf("unknown event type %q", envelope.Type)}
}

func (c *Consumer) applyContribution(ctx context.Context, envelope *Envelope) (string, error) {
	var p ContributionApproved
	if err := json.Unmarshal(envelope.Payload, &p); err != nil {
		return "", &rejectionError{cause: fmt.Errorf("contribution payload: %w", err)}
	}
	date, err := c.effectiveDate(ctx, p.Date, p.PeriodID)
	if err != nil {
		return "", err
	}
	result, err := c.Capital.ApplyContribution(ctx, capital.ContributionInput{
		MemberID:  p.MemberID,
		AssetRef:  p.AssetRef,
		Category:  p.Category,
		BookValue: p.BookValue,
		TaxValue:  p.TaxValue,
		Date:      date,
		EventID:   envelope.EventID,
		Memo:      p.Memo,
	})
	if err != nil {
		return "", err
	}
	if err := c.recordPatronage(ctx, &p, result.BookTx.PeriodID, envelope.EventID); err != nil {
		return "", err
	}
	return "posted " + result.BookTx.ID.String(), nil
}

// recordPatronage stores the contribution as allocation input for its
// period, unless a replayed delivery already did.
func (c *Consumer) recordPatronage(ctx context.Context, p *ContributionApproved, periodID uuid.UUID, eventID string) error {
	existing, err := c.PatronageRepo.List(ctx, periodID)
	if err != nil {
		return err
	}
	for _, record := range existing {
		if record.EventID == eventID {
			return nil
		}
	}
	return c.PatronageRepo.Record(ctx, &domain.Patronage{
		ID:         uuid.New(),
		MemberID:   p.MemberID,
		PeriodID:   periodID,
		Category:   p.Category,
		Amount:     p.BookValue,
		RecordedAt: c.Now(),
		EventID:    eventID,
	})
}

func (c *Consumer) applyRevaluation(ctx context.Context, envelope *Envelope) (string, error) {
	var p RevaluationTriggered
	if err := json.Unmarshal(envelope.Payload, &p); err != nil {
		return "", &rejectionError{cause: fmt.Errorf("revaluation payload: %w", err)}
	}
	if len(p.Valuations) == 0 {
		return "", &rejectionError{cause: errors.New("revaluation event carries no asset valuations")}
	}
	date, err := c.effectiveDate(ctx, p.Date, p.PeriodID)
	if err != nil {
		return "", err
	}
	for _, v := range p.Valuations {
		// One sub-key per asset: a redelivery resumes at the first asset
		// that did not go through.
		_, err := c.Capital.Revalue(ctx, capital.RevaluationInput{
			AssetRef:     v.AssetRef,
			NewBookValue: v.FairValue,
			Date:         date,
			EventID:      envelope.EventID + ":" + v.AssetRef,
			Memo:         p.Reason,
		})
		if err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("revalued %d assets", len(p.Valuations)), nil
}

func (c *Consumer) applyClose(ctx context.Context, envelope *Envelope) (string, error) {
	var p PeriodCloseRequested
	if err := json.Unmarshal(envelope.Payload, &p); err != nil {
		return "", &rejectionError{cause: fmt.Errorf("close payload: %w", err)}
	}
	state, err := c.Closer.Close(ctx, p.PeriodID)
	if errors.Is(err, domain.ErrAwaitingApproval) {
		// The close parked where it should: the allocation now waits for
		// an approver. That is this event fully applied.
		return "awaiting approval", nil
	}
	if err != nil {
		return "", err
	}
	return "close reached " + string(state.Step), nil
}

func (c *Consumer) applyDistribution(ctx context.Context, envelope *Envelope) (string, error) {
	var p DistributionRequested
	if err := json.Unmarshal(envelope.Payload, &p); err != nil {
		return "", &rejectionError{cause: fmt.Errorf("distribution payload: %w", err)}
	}
	date, err := c.effectiveDate(ctx, p.Date, p.PeriodID)
	if err != nil {
		return "", err
	}
	memo := "distribution"
	if p.MethodRef != "" {
		memo = "distribution via " + p.MethodRef
	}
	result, err := c.Capital.Distribute(ctx, capital.DistributionInput{
		MemberID: p.MemberID,
		Amount:   p.Amount,
		Date:     date,
		EventID:  envelope.EventID,
		Memo:     memo,
	})
	if err != nil {
		return "", err
	}
	return "posted " + result.BookTx.ID.String(), nil
}

// effectiveDate prefers the event's explicit date and falls back to the
// start of its named period.
func (c *Consumer) effectiveDate(ctx context.Context, date time.Time, periodID *uuid.UUID) (time.Time, error) {
	if !date.IsZero() {
		return date, nil
	}
	if periodID == nil {
		return time.Time{}, &rejectionError{cause: errors.New("event carries neither a date nor a period_id")}
	}
	period, err := c.PeriodRepo.GetByID(ctx, *periodID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return time.Time{}, &rejectionError{cause: fmt.Errorf("period %s: %w", periodID, err)}
		}
		return time.Time{}, err
	}
	return period.Start, nil
}

// rejectionError marks an event as refused by a domain rule: final, never
// retried, recorded as the event's outcome.
type rejectionError struct {
	cause error
}

func (e *rejectionError) Error() string { return e.cause.Error() }
func (e *rejectionError) Unwrap() error { return e.cause }

// isRejection classifies an effect error. Sentinel domain errors mean the
// event itself is unacceptable; anything else is presumed transient.
func isRejection(err error) bool {
	for _, sentinel := range []error{
		domain.ErrNotFound,
		domain.ErrUnbalanced,
		domain.ErrPeriodClosed,
		domain.ErrPeriodLocked,
		domain.ErrInactiveAccount,
		domain.ErrNonLeafAccount,
		domain.ErrBasisMixed,
		domain.ErrInsufficientCapital,
		domain.ErrInvalidFormula,
		domain.ErrCalculationMismatch,
		domain.ErrDuplicateEvent,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	var rejection *rejectionError
	return errors.As(err, &rejection)
}
