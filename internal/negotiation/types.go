// Package negotiation implements the turn-based deliberation engine: the
// volley scheduler, the plan-synthesis step, the approval gate, and the
// session state machine composing them.
package negotiation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// State is the session lifecycle state.
type State string

const (
	StateNegotiating      State = "negotiating"
	StateAwaitingApproval State = "awaiting_approval"
	StateExecuting        State = "executing"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
)

// Terminal reports whether no further scheduler, synthesis, or coordinator
// calls are accepted.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// FailureReason explains a failed session.
type FailureReason string

const (
	ReasonNone             FailureReason = ""
	ReasonSynthesisFailed  FailureReason = "SynthesisFailed"
	ReasonNegotiationLimit FailureReason = "NegotiationLimitExceeded"
	ReasonCancelled        FailureReason = "Cancelled"
)

// Errors surfaced by the negotiation engine.
var (
	ErrSynthesisFormat    = errors.New("synthesis output did not match plan shape")
	ErrUnknownPlan        = errors.New("unknown plan id")
	ErrUnknownParticipant = errors.New("unknown participant id")
	ErrDuplicateDecision  = errors.New("participant already decided on this plan")
	ErrFeedbackRequired   = errors.New("rejection requires feedback text")
	ErrInvalidState       = errors.New("operation not valid in current session state")
	ErrTooFewParticipants = errors.New("at least two participants required")
)

// ItineraryItem is one bookable or plannable element of a plan.
type ItineraryItem struct {
	Title string `json:"title"`
	Notes string `json:"notes,omitempty"`
}

// Plan is a synthesized candidate output. Immutable once produced; a newer
// plan supersedes it, never mutates it.
type Plan struct {
	ID              string          `json:"id"`
	Volley          int             `json:"volley"`
	Destination     string          `json:"destination"`
	DepartureDate   string          `json:"departure_date"`
	ReturnDate      string          `json:"return_date"`
	BudgetPerPerson int             `json:"budget_per_person"`
	Itinerary       []ItineraryItem `json:"itinerary"`
	Compromises     []string        `json:"compromises,omitempty"`
	Participants    []string        `json:"participants"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ParsePlan parses raw model output into a Plan, tolerating markdown fences.
// Structural JSON errors and missing required fields both count as format
// failures: a partially synthesized plan is worse than an explicit one.
func ParsePlan(raw string) (Plan, error) {
	text := stripFences(raw)

	var plan Plan
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return Plan{}, fmt.Errorf("%w: %v", ErrSynthesisFormat, err)
	}

	var missing []string
	if plan.Destination == "" {
		missing = append(missing, "destination")
	}
	if plan.DepartureDate == "" {
		missing = append(missing, "departure_date")
	}
	if plan.ReturnDate == "" {
		missing = append(missing, "return_date")
	}
	if plan.BudgetPerPerson <= 0 {
		missing = append(missing, "budget_per_person")
	}
	if len(plan.Itinerary) == 0 {
		missing = append(missing, "itinerary")
	}
	if len(missing) > 0 {
		return Plan{}, fmt.Errorf("%w: missing required fields: %s",
			ErrSynthesisFormat, strings.Join(missing, ", "))
	}

	plan.ID = uuid.New().String()
	plan.CreatedAt = time.Now().UTC()
	return plan, nil
}

// stripFences unwraps ```json ... ``` or ``` ... ``` blocks.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "```json"); idx >= 0 {
		s = s[idx+len("```json"):]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	return strings.TrimSpace(s)
}
