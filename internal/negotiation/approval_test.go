package negotiation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_UnanimousApproval(t *testing.T) {
	g := NewGate("plan-1", []string{"alice", "bob", "carol"})

	out, err := g.RecordDecision("plan-1", "alice", DecisionApproved, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeWaiting, out)

	out, err = g.RecordDecision("plan-1", "bob", DecisionApproved, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeWaiting, out)

	out, err = g.RecordDecision("plan-1", "carol", DecisionApproved, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, out)
}

func TestGate_RejectionWaitsForAllDecisions(t *testing.T) {
	g := NewGate("plan-1", []string{"alice", "bob"})

	// One rejection alone does not restart: the other participant still
	// gets a voice.
	out, err := g.RecordDecision("plan-1", "alice", DecisionRejected, "budget too high")
	require.NoError(t, err)
	assert.Equal(t, OutcomeWaiting, out)

	out, err = g.RecordDecision("plan-1", "bob", DecisionApproved, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, out)

	assert.Equal(t, []string{"budget too high"}, g.Feedback())
}

func TestGate_FeedbackCollectedInOrder(t *testing.T) {
	g := NewGate("plan-1", []string{"alice", "bob", "carol"})

	_, err := g.RecordDecision("plan-1", "carol", DecisionRejected, "too long")
	require.NoError(t, err)
	_, err = g.RecordDecision("plan-1", "alice", DecisionRejected, "too expensive")
	require.NoError(t, err)
	_, err = g.RecordDecision("plan-1", "bob", DecisionApproved, "")
	require.NoError(t, err)

	// Registration order, not decision order.
	assert.Equal(t, []string{"too expensive", "too long"}, g.Feedback())
}

func TestGate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		planID   string
		pid      string
		decision Decision
		feedback string
		setup    func(g *Gate)
		wantErr  error
	}{
		{
			name: "unknown plan", planID: "plan-other", pid: "alice",
			decision: DecisionApproved, wantErr: ErrUnknownPlan,
		},
		{
			name: "unknown participant", planID: "plan-1", pid: "mallory",
			decision: DecisionApproved, wantErr: ErrUnknownParticipant,
		},
		{
			name: "duplicate decision", planID: "plan-1", pid: "alice",
			decision: DecisionApproved,
			setup: func(g *Gate) {
				_, _ = g.RecordDecision("plan-1", "alice", DecisionApproved, "")
			},
			wantErr: ErrDuplicateDecision,
		},
		{
			name: "rejection without feedback", planID: "plan-1", pid: "alice",
			decision: DecisionRejected, wantErr: ErrFeedbackRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate("plan-1", []string{"alice", "bob"})
			if tt.setup != nil {
				tt.setup(g)
			}
			_, err := g.RecordDecision(tt.planID, tt.pid, tt.decision, tt.feedback)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("RecordDecision error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGate_SnapshotHasEntryPerParticipant(t *testing.T) {
	g := NewGate("plan-1", []string{"alice", "bob"})
	_, err := g.RecordDecision("plan-1", "alice", DecisionRejected, "nope")
	require.NoError(t, err)

	snap := g.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, DecisionRejected, snap["alice"].Decision)
	assert.Equal(t, "nope", snap["alice"].Feedback)
	assert.Equal(t, DecisionPending, snap["bob"].Decision)
}
