// Package services implements the ledger operations on top of the storage
// ports: dues, expenses, reports, the organization directory and monthly
// billing.
package services

import (
	"context"
	"log/slog"
	"time"

	"sitetakip/internal/amqp"
)

// EventPublisher announces committed writes. *amqp.Client implements it.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error
}

// Option configures a service.
type Option func(*options)

type options struct {
	now    func() time.Time
	events EventPublisher
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithEvents publishes ledger events after each write.
func WithEvents(p EventPublisher) Option {
	return func(o *options) { o.events = p }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// publish never fails the caller: the write is already committed and the
// sync worker sweeps anything whose event was lost.
func (o options) publish(ctx context.Context, ev *amqp.LedgerEvent) {
	if o.events == nil {
		slog.DebugContext(ctx, "Event publisher not configured, skipping ledger event", "type", ev.Type)
		return
	}
	if err := o.events.PublishLedgerEvent(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"type", ev.Type,
			"organization_id", ev.OrganizationID,
			"error", err)
	}
}
