package negotiation

import (
	"fmt"
	"sync"
	"time"
)

// Decision is one participant's verdict on a plan.
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// DecisionView is the externally visible approval entry for one participant.
type DecisionView struct {
	Decision  Decision  `json:"decision"`
	Feedback  string    `json:"feedback,omitempty"`
	DecidedAt time.Time `json:"decided_at,omitempty"`
}

// Outcome is the gate's verdict after a decision is recorded.
type Outcome string

const (
	// OutcomeWaiting means not every participant has decided yet.
	OutcomeWaiting Outcome = "waiting"
	// OutcomeApproved means every participant approved: proceed to execution.
	OutcomeApproved Outcome = "approved"
	// OutcomeRejected means everyone has decided and at least one rejected:
	// restart negotiation seeded with the collected feedback.
	OutcomeRejected Outcome = "rejected"
)

// Gate tracks per-participant decisions against one plan. Decisions are
// final per plan; changing one's mind requires a new plan and a fresh gate.
// Unanimity is required to proceed to execution.
type Gate struct {
	mu        sync.RWMutex
	planID    string
	order     []string
	decisions map[string]*DecisionView
}

// NewGate creates a gate for the given plan with all decisions pending.
// Exactly one entry exists per participant.
func NewGate(planID string, participantIDs []string) *Gate {
	g := &Gate{
		planID:    planID,
		order:     append([]string(nil), participantIDs...),
		decisions: make(map[string]*DecisionView, len(participantIDs)),
	}
	for _, id := range participantIDs {
		g.decisions[id] = &DecisionView{Decision: DecisionPending}
	}
	return g
}

// PlanID returns the plan this gate guards.
func (g *Gate) PlanID() string {
	return g.planID
}

// RecordDecision records one participant's decision and evaluates the gate's
// policy. Rejections carry mandatory feedback used to seed the next volley.
func (g *Gate) RecordDecision(planID, participantID string, decision Decision, feedback string) (Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if planID != g.planID {
		return OutcomeWaiting, fmt.Errorf("%w: %s", ErrUnknownPlan, planID)
	}
	entry, ok := g.decisions[participantID]
	if !ok {
		return OutcomeWaiting, fmt.Errorf("%w: %s", ErrUnknownParticipant, participantID)
	}
	if entry.Decision != DecisionPending {
		return OutcomeWaiting, fmt.Errorf("%w: %s", ErrDuplicateDecision, participantID)
	}
	if decision == DecisionRejected && feedback == "" {
		return OutcomeWaiting, ErrFeedbackRequired
	}

	entry.Decision = decision
	entry.Feedback = feedback
	entry.DecidedAt = time.Now().UTC()

	return g.evaluate(), nil
}

// evaluate applies the decision policy: wait until every participant has a
// decision; then unanimity proceeds and anything else restarts. Callers must
// hold the lock.
func (g *Gate) evaluate() Outcome {
	rejected := false
	for _, entry := range g.decisions {
		switch entry.Decision {
		case DecisionPending:
			return OutcomeWaiting
		case DecisionRejected:
			rejected = true
		}
	}
	if rejected {
		return OutcomeRejected
	}
	return OutcomeApproved
}

// Feedback returns all rejection feedback texts in registration order.
func (g *Gate) Feedback() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	for _, id := range g.order {
		if entry := g.decisions[id]; entry.Decision == DecisionRejected {
			out = append(out, entry.Feedback)
		}
	}
	return out
}

// Snapshot returns a copy of the current approval state per participant.
func (g *Gate) Snapshot() map[string]DecisionView {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]DecisionView, len(g.decisions))
	for id, entry := range g.decisions {
		out[id] = *entry
	}
	return out
}
