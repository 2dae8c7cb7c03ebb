package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	applog "sitetakip/internal/log"
)

// billingJobTimeout bounds a single billing run.
const billingJobTimeout = 10 * time.Minute

// BillingRunner is satisfied by *services.BillingProcessor.
type BillingRunner interface {
	RunMonthlyBilling(ctx context.Context, now time.Time) (int, error)
}

// BillingScheduler runs monthly billing on a cron schedule in UTC.
type BillingScheduler struct {
	cron   *cron.Cron
	runner BillingRunner
	now    func() time.Time
}

// NewBillingScheduler parses spec as a standard five-field cron expression.
func NewBillingScheduler(runner BillingRunner, spec string, logger *slog.Logger) (*BillingScheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger}
	s := &BillingScheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner: runner,
		now:    time.Now,
	}
	if _, err := s.cron.AddFunc(spec, s.runScheduled); err != nil {
		return nil, fmt.Errorf("schedule billing %q: %w", spec, err)
	}
	return s, nil
}

func (s *BillingScheduler) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), billingJobTimeout)
	defer cancel()
	if _, err := s.RunNow(ctx); err != nil {
		slog.ErrorContext(ctx, "Scheduled billing failed", applog.FieldError, err)
	}
}

// RunNow bills the current month immediately.
func (s *BillingScheduler) RunNow(ctx context.Context) (int, error) {
	now := s.now().UTC()
	slog.InfoContext(ctx, "Starting monthly billing job",
		applog.FieldOperation, applog.OpBill,
		applog.FieldYear, now.Year(),
		applog.FieldMonth, int(now.Month()))
	created, err := s.runner.RunMonthlyBilling(ctx, now)
	if err != nil {
		return 0, err
	}
	slog.InfoContext(ctx, "Monthly billing job complete", "dues_created", created)
	return created, nil
}

func (s *BillingScheduler) Start() {
	s.cron.Start()
}

// Next reports when the job runs next; zero before Start.
func (s *BillingScheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Stop stops scheduling and waits for a running job until ctx is done.
func (s *BillingScheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, applog.FieldError, err)...)
}
