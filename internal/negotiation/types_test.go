package negotiation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPlanJSON = `{
  "destination": "Lisbon, Portugal",
  "departure_date": "2026-04-10",
  "return_date": "2026-04-17",
  "budget_per_person": 1450,
  "itinerary": [
    {"title": "Day 1: Alfama walking tour", "notes": "evening fado"},
    {"title": "Day 2: Sintra day trip", "notes": ""}
  ],
  "compromises": ["Trimmed to 7 nights to fit the lower budget"]
}`

func TestParsePlan_Valid(t *testing.T) {
	plan, err := ParsePlan(validPlanJSON)
	require.NoError(t, err)

	assert.NotEmpty(t, plan.ID)
	assert.False(t, plan.CreatedAt.IsZero())
	assert.Equal(t, "Lisbon, Portugal", plan.Destination)
	assert.Equal(t, "2026-04-10", plan.DepartureDate)
	assert.Equal(t, "2026-04-17", plan.ReturnDate)
	assert.Equal(t, 1450, plan.BudgetPerPerson)
	require.Len(t, plan.Itinerary, 2)
	assert.Equal(t, "Day 1: Alfama walking tour", plan.Itinerary[0].Title)
	assert.Equal(t, []string{"Trimmed to 7 nights to fit the lower budget"}, plan.Compromises)
}

func TestParsePlan_StripsMarkdownFences(t *testing.T) {
	fenced := "```json\n" + validPlanJSON + "\n```"
	plan, err := ParsePlan(fenced)
	require.NoError(t, err)
	assert.Equal(t, "Lisbon, Portugal", plan.Destination)

	bare := "```\n" + validPlanJSON + "\n```"
	plan, err = ParsePlan(bare)
	require.NoError(t, err)
	assert.Equal(t, "Lisbon, Portugal", plan.Destination)
}

func TestParsePlan_FormatErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "here is your plan: fly to Lisbon"},
		{"empty", ""},
		{"missing destination", `{"departure_date":"2026-04-10","return_date":"2026-04-17","budget_per_person":100,"itinerary":[{"title":"x"}]}`},
		{"missing dates", `{"destination":"Lisbon","budget_per_person":100,"itinerary":[{"title":"x"}]}`},
		{"zero budget", `{"destination":"Lisbon","departure_date":"2026-04-10","return_date":"2026-04-17","budget_per_person":0,"itinerary":[{"title":"x"}]}`},
		{"empty itinerary", `{"destination":"Lisbon","departure_date":"2026-04-10","return_date":"2026-04-17","budget_per_person":100,"itinerary":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlan(tt.raw)
			if !errors.Is(err, ErrSynthesisFormat) {
				t.Errorf("ParsePlan(%q) error = %v, want ErrSynthesisFormat", tt.raw, err)
			}
		})
	}
}

func TestState_Terminal(t *testing.T) {
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateNegotiating.Terminal())
	assert.False(t, StateAwaitingApproval.Terminal())
	assert.False(t, StateExecuting.Terminal())
}
