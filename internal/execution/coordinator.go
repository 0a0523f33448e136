// Package execution runs the post-approval booking tasks: one independent
// task per participant, concurrently, with per-task timeouts and strict
// failure isolation. The coordinator only aggregates read-only results;
// tasks never share mutable state.
package execution

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voyaged/internal/registry"
)

// ResultKind is the terminal-or-not status of one participant's task.
type ResultKind string

const (
	KindNotStarted ResultKind = "not-started"
	KindInProgress ResultKind = "in-progress"
	KindSucceeded  ResultKind = "succeeded"
	KindFailed     ResultKind = "failed"
)

// ErrorKind categorizes a failed task.
type ErrorKind string

const (
	ErrorTimeout   ErrorKind = "Timeout"
	ErrorCancelled ErrorKind = "Cancelled"
	ErrorBooking   ErrorKind = "BookingFailed"
)

// Result is the outcome of one participant's execution task. Terminal
// failures are never retried automatically.
type Result struct {
	Kind      ResultKind `json:"kind"`
	Payload   string     `json:"payload,omitempty"`
	ErrorKind ErrorKind  `json:"error_kind,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// Request carries one participant's slice of the approved plan: the shared
// plan facts plus their own identity and payment references.
type Request struct {
	SessionID       string               `json:"session_id"`
	PlanID          string               `json:"plan_id"`
	Participant     registry.Participant `json:"participant"`
	Destination     string               `json:"destination"`
	DepartureDate   string               `json:"departure_date"`
	ReturnDate      string               `json:"return_date"`
	BudgetPerPerson int                  `json:"budget_per_person"`
	Itinerary       []string             `json:"itinerary,omitempty"`
}

// Booker performs one booking. Implementations are opaque to the
// coordinator; the payload is a confirmation reference.
type Booker interface {
	Book(ctx context.Context, req Request) (payload string, err error)
}

// Config holds coordinator configuration.
type Config struct {
	// TaskTimeout bounds each task. A task still running at the deadline is
	// recorded as failed(Timeout); the underlying operation is signalled via
	// context but never forcibly interrupted.
	TaskTimeout time.Duration `koanf:"task_timeout"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 10 * time.Minute
	}
}

// Coordinator fans execution tasks out and joins their terminal results.
type Coordinator struct {
	booker Booker
	logger *zap.Logger
	cfg    Config
}

// NewCoordinator creates a coordinator around the given booker.
func NewCoordinator(booker Booker, cfg Config, logger *zap.Logger) *Coordinator {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{booker: booker, logger: logger, cfg: cfg}
}

// Execute launches one task per request concurrently and returns once every
// task has a terminal result. One participant's failure never cancels or
// blocks another's task, and never appears in another's result.
func (c *Coordinator) Execute(ctx context.Context, requests []Request) map[string]Result {
	results := make(map[string]Result, len(requests))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, req := range requests {
		req := req
		id := req.Participant.ID

		mu.Lock()
		results[id] = Result{Kind: KindInProgress}
		mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			res := c.runTask(ctx, req)
			mu.Lock()
			results[id] = res
			mu.Unlock()
		}()
	}

	wg.Wait()
	return results
}

// runTask executes one booking with its own deadline. The booker call runs
// in its own goroutine so a task that ignores cancellation can be abandoned
// at the deadline instead of wedging the join.
func (c *Coordinator) runTask(ctx context.Context, req Request) Result {
	taskCtx, cancel := context.WithTimeout(ctx, c.cfg.TaskTimeout)
	defer cancel()

	type outcome struct {
		payload string
		err     error
	}
	done := make(chan outcome, 1)
	start := time.Now()

	go func() {
		payload, err := c.booker.Book(taskCtx, req)
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			c.logger.Warn("execution task failed",
				zap.String("participant_id", req.Participant.ID),
				zap.String("plan_id", req.PlanID),
				zap.Duration("duration", time.Since(start)),
				zap.Error(out.err),
			)
			kind := ErrorBooking
			if ctx.Err() == context.Canceled {
				kind = ErrorCancelled
			}
			return Result{Kind: KindFailed, ErrorKind: kind, Message: out.err.Error()}
		}
		c.logger.Info("execution task succeeded",
			zap.String("participant_id", req.Participant.ID),
			zap.String("plan_id", req.PlanID),
			zap.Duration("duration", time.Since(start)),
		)
		return Result{Kind: KindSucceeded, Payload: out.payload}

	case <-taskCtx.Done():
		if ctx.Err() == context.Canceled {
			return Result{
				Kind:      KindFailed,
				ErrorKind: ErrorCancelled,
				Message:   "execution cancelled",
			}
		}
		c.logger.Warn("execution task timed out",
			zap.String("participant_id", req.Participant.ID),
			zap.String("plan_id", req.PlanID),
			zap.Duration("timeout", c.cfg.TaskTimeout),
		)
		return Result{
			Kind:      KindFailed,
			ErrorKind: ErrorTimeout,
			Message:   "task did not finish within " + c.cfg.TaskTimeout.String(),
		}
	}
}
