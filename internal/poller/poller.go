// Package poller follows a submitted job until it finishes, fails or runs
// out of attempts.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tendant/simple-ocr-gateway/internal/process"
	"github.com/tendant/simple-ocr-gateway/pkg/schema"
)

const (
	DefaultInterval    = 5 * time.Second
	DefaultMaxAttempts = 60
)

// Source reads job records; the gateway HTTP client and query.Service both
// satisfy it.
type Source interface {
	Status(ctx context.Context, jobID string) (*schema.JobRecord, error)
	Result(ctx context.Context, jobID string) (*schema.JobRecord, error)
}

type State string

const (
	StateIdle      State = "idle"
	StatePolling   State = "polling"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateTimedOut
}

var ErrTimedOut = errors.New("job did not finish within the polling budget")

// JobFailedError carries the worker's failure message.
type JobFailedError struct {
	JobID   string
	Message string
}

func (e *JobFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("job %s failed", e.JobID)
	}
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

// Outcome is what a poll ended with.
type Outcome struct {
	JobID    string
	State    State
	Job      *schema.JobRecord
	Attempts int
	History  []schema.JobStatus
}

// Err converts a non-successful terminal state into an error.
func (o *Outcome) Err() error {
	switch o.State {
	case StateCompleted:
		return nil
	case StateFailed:
		msg := ""
		if o.Job != nil {
			msg = o.Job.Error
		}
		return &JobFailedError{JobID: o.JobID, Message: msg}
	case StateTimedOut:
		return fmt.Errorf("%w after %d attempts", ErrTimedOut, o.Attempts)
	}
	return fmt.Errorf("job %s still %s", o.JobID, o.State)
}

// Schedule returns the wait after the given 1-based attempt.
type Schedule func(attempt int) time.Duration

func Fixed(d time.Duration) Schedule {
	return func(int) time.Duration { return d }
}

// ExponentialBackoff doubles the wait after every attempt, capped at max.
func ExponentialBackoff(base, max time.Duration) Schedule {
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt && d < max; i++ {
			d *= 2
		}
		if d > max {
			d = max
		}
		return d
	}
}

type Option func(*Poller)

// WithInterval sets a fixed wait between checks. Unless WithBudget says
// otherwise the total wait is limited to interval x (maxAttempts-1), and
// that limit also holds when a later WithSchedule replaces the fixed wait.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d >= 0 {
			p.interval = d
			p.schedule = Fixed(d)
		}
	}
}

// WithBudget caps the total time spent waiting between checks.
func WithBudget(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.budget = d
		}
	}
}

func WithSchedule(s Schedule) Option {
	return func(p *Poller) {
		if s != nil {
			p.schedule = s
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// OnUpdate is called after every state change and every status read.
func OnUpdate(fn func(State, *schema.JobRecord)) Option {
	return func(p *Poller) { p.onUpdate = fn }
}

type Poller struct {
	source      Source
	schedule    Schedule
	interval    time.Duration
	budget      time.Duration
	maxAttempts int
	logger      *slog.Logger
	onUpdate    func(State, *schema.JobRecord)
	sleep       func(context.Context, time.Duration) error
}

func New(src Source, opts ...Option) *Poller {
	p := &Poller{
		source:      src,
		schedule:    Fixed(DefaultInterval),
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.Default(),
		sleep:       sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll checks the job's status immediately and then once per scheduled
// interval, until the attempts or the wait budget run out. A completed job triggers exactly one result read; a failed job
// ends the poll without one. Transport errors and cancellation end the poll
// at once and are returned along with the partial outcome.
func (p *Poller) Poll(ctx context.Context, jobID string) (*Outcome, error) {
	out := &Outcome{JobID: jobID, State: StateIdle}
	logger := p.logger.With("job_id", jobID)
	var obs process.Observer
	budget := p.waitBudget()
	var waited time.Duration

	p.set(out, StatePolling)
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rec, err := p.source.Status(ctx, jobID)
		out.Attempts = attempt
		if err != nil {
			logger.Error("status check failed", "attempt", attempt, "err", err)
			return out, fmt.Errorf("status check: %w", err)
		}
		if err := obs.Observe(rec.Status); err != nil {
			return out, err
		}
		out.Job = rec
		out.History = obs.History()
		p.notify(out.State, rec)
		logger.Debug("status checked", "attempt", attempt, "status", rec.Status)

		switch rec.Status {
		case schema.StatusCompleted:
			if err := ctx.Err(); err != nil {
				return out, err
			}
			full, err := p.source.Result(ctx, jobID)
			if err != nil {
				logger.Error("result fetch failed", "err", err)
				return out, fmt.Errorf("result fetch: %w", err)
			}
			out.Job = full
			p.set(out, StateCompleted)
			logger.Info("job completed", "attempts", attempt)
			return out, nil
		case schema.StatusFailed:
			p.set(out, StateFailed)
			logger.Warn("job failed", "attempts", attempt, "error", rec.Error)
			return out, nil
		}

		if attempt == p.maxAttempts {
			break
		}
		d := p.schedule(attempt)
		if budget > 0 {
			if waited >= budget {
				break
			}
			d = min(d, budget-waited)
		}
		if err := p.sleep(ctx, d); err != nil {
			return out, err
		}
		waited += d
	}

	p.set(out, StateTimedOut)
	logger.Warn("job polling timed out", "attempts", out.Attempts, "last_status", obs.Last())
	return out, nil
}

func (p *Poller) waitBudget() time.Duration {
	if p.budget > 0 {
		return p.budget
	}
	return p.interval * time.Duration(p.maxAttempts-1)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *Poller) set(out *Outcome, s State) {
	out.State = s
	p.notify(s, out.Job)
}

func (p *Poller) notify(s State, rec *schema.JobRecord) {
	if p.onUpdate != nil {
		p.onUpdate(s, rec)
	}
}
