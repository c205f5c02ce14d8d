// Package publisher provides domain.Publisher implementations. Notifications
// describe already-committed changes, so every implementation here is
// fire-and-forget.
package publisher

import (
	"context"
	"log/slog"
	"sync"

	"github.com/coopledger/coopledger/internal/domain"
)

// Log writes each notification to a structured logger.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a publisher that logs notifications.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (p *Log) Publish(_ context.Context, n domain.Notification) error {
	attrs := make([]any, 0, 2+2*len(n.Fields))
	attrs = append(attrs, "subject", n.Subject)
	for k, v := range n.Fields {
		attrs = append(attrs, k, v)
	}
	p.logger.Info(n.Kind, attrs...)
	return nil
}

// Memory collects notifications for inspection in tests.
type Memory struct {
	mu            sync.Mutex
	notifications []domain.Notification
}

// NewMemory creates a collecting publisher.
func NewMemory() *Memory {
	return &Memory{}
}

func (p *Memory) Publish(_ context.Context, n domain.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifications = append(p.notifications, n)
	return nil
}

// Notifications returns a copy of everything published so far.
func (p *Memory) Notifications() []domain.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Notification, len(p.notifications))
	copy(out, p.notifications)
	return out
}

// Kinds returns the kinds published so far, in order.
func (p *Memory) Kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]string, len(p.notifications))
	for i, n := range p.notifications {
		kinds[i] = n.Kind
	}
	return kinds
}
