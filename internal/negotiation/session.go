package negotiation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voyaged/internal/execution"
	"github.com/fyrsmithlabs/voyaged/internal/registry"
	"github.com/fyrsmithlabs/voyaged/internal/transcript"
)

// SessionConfig configures one session's lifecycle bounds.
type SessionConfig struct {
	// MaxVolleys bounds the awaiting_approval -> negotiating cycle. When a
	// rejection would start a volley past this bound the session fails with
	// NegotiationLimitExceeded.
	MaxVolleys int `koanf:"max_volleys"`

	// MessagesPerVolley overrides the scheduler's per-participant quota for
	// this session. Zero keeps the scheduler's configured value. Set per
	// request, never from the config file.
	MessagesPerVolley int `koanf:"-"`
}

// ApplyDefaults sets default values for unset fields.
func (c *SessionConfig) ApplyDefaults() {
	if c.MaxVolleys <= 0 {
		c.MaxVolleys = 5
	}
}

// Status is the externally visible snapshot of a session. Reading it any
// number of times without other calls returns an unchanged result.
type Status struct {
	SessionID    string                      `json:"session_id"`
	State        State                       `json:"state"`
	Reason       FailureReason               `json:"reason,omitempty"`
	Volley       int                         `json:"volley"`
	Participants []string                    `json:"participants"`
	Plan         *Plan                       `json:"plan,omitempty"`
	Approvals    map[string]DecisionView     `json:"approvals,omitempty"`
	Executions   map[string]execution.Result `json:"executions,omitempty"`
	Messages     int                         `json:"messages"`
}

// Session is the aggregate root: registry, transcript, volleys, plans,
// approval state, execution results, and the lifecycle state machine tying
// them together. All mutation goes through the session; negotiation is
// single-writer (one active driver at a time) while execution fans out.
type Session struct {
	ID string

	registry    *registry.Registry
	transcript  *transcript.Transcript
	scheduler   *Scheduler
	engine      *Engine
	coordinator *execution.Coordinator
	logger      *zap.Logger
	cfg         SessionConfig

	// driver serializes the long-running negotiation operations: Start and
	// the decision calls that trigger a new volley or execution.
	driver sync.Mutex

	// mu guards the snapshot fields below.
	mu         sync.RWMutex
	state      State
	reason     FailureReason
	volleys    []VolleyResult
	plans      []Plan
	gate       *Gate
	executions map[string]execution.Result
	createdAt  time.Time

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	done     chan struct{}
	doneOnce sync.Once
}

// NewSession creates a session over the given participants. Registration
// order becomes the fixed turn order for every volley.
func NewSession(
	participants []registry.Participant,
	scheduler *Scheduler,
	engine *Engine,
	coordinator *execution.Coordinator,
	cfg SessionConfig,
	logger *zap.Logger,
) (*Session, error) {
	if len(participants) < 2 {
		return nil, ErrTooFewParticipants
	}
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	reg := registry.New()
	if err := reg.Register(participants); err != nil {
		return nil, err
	}

	s := &Session{
		ID:          uuid.New().String(),
		registry:    reg,
		transcript:  transcript.New(),
		scheduler:   scheduler,
		engine:      engine,
		coordinator: coordinator,
		cfg:         cfg,
		state:       StateNegotiating,
		executions:  make(map[string]execution.Result),
		createdAt:   time.Now().UTC(),
		done:        make(chan struct{}),
	}
	s.logger = logger.With(zap.String("session_id", s.ID))
	return s, nil
}

// Start runs the first volley and synthesis. On success the session is
// awaiting approval with a candidate plan; on synthesis failure it fails.
func (s *Session) Start(ctx context.Context) error {
	s.driver.Lock()
	defer s.driver.Unlock()

	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()
	if state != StateNegotiating || len(s.volleys) > 0 {
		return fmt.Errorf("%w: session already started", ErrInvalidState)
	}

	return s.runRound(ctx, 0, nil)
}

// runRound drives one volley plus synthesis and moves the state machine to
// awaiting_approval or failed. Caller holds the driver lock.
func (s *Session) runRound(ctx context.Context, volley int, feedback []string) error {
	ctx, cancel := context.WithCancel(ctx)
	s.setCancel(cancel)
	defer s.clearCancel()

	result, err := s.scheduler.RunVolley(ctx, volley, s.cfg.MessagesPerVolley, s.registry, s.transcript, feedback)
	if err != nil {
		// Cancellation discards any in-flight turn result; fail() is a no-op
		// when Cancel already marked the session failed.
		if ctx.Err() != nil {
			s.fail(ReasonCancelled)
			return err
		}
		s.fail(ReasonSynthesisFailed)
		return err
	}

	s.mu.Lock()
	s.volleys = append(s.volleys, result)
	s.mu.Unlock()

	plan, err := s.engine.Synthesize(ctx, s.transcript, s.registry.All(), volley)
	if err != nil {
		if ctx.Err() != nil {
			s.fail(ReasonCancelled)
			return err
		}
		s.fail(ReasonSynthesisFailed)
		return fmt.Errorf("synthesis failed for volley %d: %w", volley, err)
	}

	s.mu.Lock()
	s.plans = append(s.plans, plan)
	s.gate = NewGate(plan.ID, s.registry.Order())
	s.state = StateAwaitingApproval
	s.mu.Unlock()

	s.logger.Info("awaiting approval",
		zap.String("plan_id", plan.ID),
		zap.Int("volley", volley),
	)
	return nil
}

// Approve records an approval for the current plan and, on unanimity,
// drives the session into execution.
func (s *Session) Approve(ctx context.Context, participantID string) error {
	return s.decide(ctx, participantID, DecisionApproved, "")
}

// Reject records a rejection with feedback for the current plan. Once every
// participant has decided and at least one rejected, a new volley runs
// seeded with all rejection feedback.
func (s *Session) Reject(ctx context.Context, participantID, feedback string) error {
	return s.decide(ctx, participantID, DecisionRejected, feedback)
}

func (s *Session) decide(ctx context.Context, participantID string, decision Decision, feedback string) error {
	s.driver.Lock()
	defer s.driver.Unlock()

	s.mu.RLock()
	state := s.state
	gate := s.gate
	s.mu.RUnlock()

	if state != StateAwaitingApproval {
		return fmt.Errorf("%w: session is %s", ErrInvalidState, state)
	}
	if !s.registry.Has(participantID) {
		return fmt.Errorf("%w: %s", ErrUnknownParticipant, participantID)
	}

	outcome, err := gate.RecordDecision(gate.PlanID(), participantID, decision, feedback)
	if err != nil {
		return err
	}

	s.logger.Info("decision recorded",
		zap.String("participant_id", participantID),
		zap.String("decision", string(decision)),
		zap.String("outcome", string(outcome)),
	)

	switch outcome {
	case OutcomeWaiting:
		// No premature restart: every participant gets a voice first.
		return nil

	case OutcomeRejected:
		nextVolley := len(s.volleys)
		if nextVolley >= s.cfg.MaxVolleys {
			s.fail(ReasonNegotiationLimit)
			s.logger.Warn("negotiation limit exceeded",
				zap.Int("volleys", nextVolley),
				zap.Int("max_volleys", s.cfg.MaxVolleys),
			)
			return nil
		}
		collected := gate.Feedback()
		s.setState(StateNegotiating)
		return s.runRound(ctx, nextVolley, collected)

	case OutcomeApproved:
		s.mu.Lock()
		s.state = StateExecuting
		// Every task is visible in status from the moment of approval,
		// before the detached goroutine picks it up.
		for _, id := range s.registry.Order() {
			s.executions[id] = execution.Result{Kind: execution.KindNotStarted}
		}
		s.mu.Unlock()
		// Execution is the one genuinely parallel stage; it runs detached
		// from the approving caller's request context.
		go s.runExecution(context.Background())
		return nil
	}
	return nil
}

// runExecution fans out one task per participant against the approved plan
// and completes the session once every task is terminal. Partial failure
// still completes the session; the per-participant results tell the story.
func (s *Session) runExecution(ctx context.Context) {
	plan := *s.currentPlan()

	requests := make([]execution.Request, 0, s.registry.Len())
	items := make([]string, 0, len(plan.Itinerary))
	for _, it := range plan.Itinerary {
		items = append(items, it.Title)
	}
	for _, p := range s.registry.All() {
		requests = append(requests, execution.Request{
			SessionID:       s.ID,
			PlanID:          plan.ID,
			Participant:     p,
			Destination:     plan.Destination,
			DepartureDate:   plan.DepartureDate,
			ReturnDate:      plan.ReturnDate,
			BudgetPerPerson: plan.BudgetPerPerson,
			Itinerary:       items,
		})
	}

	ctx, cancel := context.WithCancel(ctx)
	s.setCancel(cancel)
	defer s.clearCancel()

	s.mu.Lock()
	for _, req := range requests {
		s.executions[req.Participant.ID] = execution.Result{Kind: execution.KindInProgress}
	}
	s.mu.Unlock()

	results := s.coordinator.Execute(ctx, requests)

	s.mu.Lock()
	s.executions = results
	s.state = StateCompleted
	s.mu.Unlock()
	s.markDone()

	succeeded := 0
	for _, r := range results {
		if r.Kind == execution.KindSucceeded {
			succeeded++
		}
	}
	s.logger.Info("execution complete",
		zap.String("plan_id", plan.ID),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", len(results)-succeeded),
	)
}

// Cancel aborts the session. While negotiating or awaiting approval the
// session fails immediately and any in-flight turn result is discarded;
// during execution the cancellation signal propagates to tasks best-effort.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	executing := s.state == StateExecuting
	if !executing {
		s.state = StateFailed
		s.reason = ReasonCancelled
	}
	s.mu.Unlock()
	if !executing {
		s.markDone()
	}

	s.cancelMu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancelMu.Unlock()

	if !executing {
		s.logger.Info("session cancelled")
	} else {
		s.logger.Info("cancellation propagated to execution tasks")
	}
}

// Status returns the current snapshot. Idempotent.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		SessionID:    s.ID,
		State:        s.state,
		Reason:       s.reason,
		Volley:       len(s.volleys),
		Participants: s.registry.Order(),
		Messages:     s.transcript.Len(),
	}
	if len(s.volleys) > 0 {
		st.Volley = s.volleys[len(s.volleys)-1].Volley
	}
	if len(s.plans) > 0 {
		plan := s.plans[len(s.plans)-1]
		st.Plan = &plan
	}
	if s.gate != nil {
		st.Approvals = s.gate.Snapshot()
	}
	if len(s.executions) > 0 {
		st.Executions = make(map[string]execution.Result, len(s.executions))
		for id, r := range s.executions {
			st.Executions[id] = r
		}
	}
	return st
}

// Messages returns the full transcript for audit.
func (s *Session) Messages() []transcript.Message {
	return s.transcript.Messages()
}

// Participants returns the registered participants in turn order.
func (s *Session) Participants() []registry.Participant {
	return s.registry.All()
}

// Plans returns every synthesized plan, oldest first.
func (s *Session) Plans() []Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Plan, len(s.plans))
	copy(out, s.plans)
	return out
}

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) markDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) currentState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) currentPlan() *Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.plans) == 0 {
		return nil
	}
	plan := s.plans[len(s.plans)-1]
	return &plan
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) fail(reason FailureReason) {
	s.mu.Lock()
	if !s.state.Terminal() {
		s.state = StateFailed
		s.reason = reason
	}
	s.mu.Unlock()
	s.markDone()
}

func (s *Session) setCancel(cancel context.CancelFunc) {
	s.cancelMu.Lock()
	s.cancel = cancel
	s.cancelMu.Unlock()
}

func (s *Session) clearCancel() {
	s.cancelMu.Lock()
	s.cancel = nil
	s.cancelMu.Unlock()
}
