package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/voyaged/internal/execution"
	"github.com/fyrsmithlabs/voyaged/internal/negotiation"
	"github.com/fyrsmithlabs/voyaged/internal/registry"
	"github.com/fyrsmithlabs/voyaged/internal/transcript"
)

func testRecord() SessionRecord {
	return SessionRecord{
		SessionID: "11111111-2222-3333-4444-555555555555",
		State:     negotiation.StateCompleted,
		Participants: []registry.Participant{
			{ID: "alice", DisplayName: "Alice"},
			{ID: "bob", DisplayName: "Bob"},
		},
		Plans: []negotiation.Plan{{
			ID:              "plan-1",
			Destination:     "Lisbon, Portugal",
			DepartureDate:   "2026-04-10",
			ReturnDate:      "2026-04-17",
			BudgetPerPerson: 1450,
		}},
		Messages: []transcript.Message{
			{ID: "m1", Sender: "alice", Content: "let's do Lisbon"},
		},
		Executions: map[string]execution.Result{
			"alice": {Kind: execution.KindSucceeded, Payload: "CONF-alice"},
		},
	}
}

func TestSessionStore_SaveAndLoad(t *testing.T) {
	s, err := NewSessionStore(Config{Dir: t.TempDir()}, nil)
	require.NoError(t, err)

	rec := testRecord()
	require.NoError(t, s.Save(rec))

	got, err := s.Load(rec.SessionID)
	require.NoError(t, err)

	assert.Equal(t, rec.SessionID, got.SessionID)
	assert.Equal(t, negotiation.StateCompleted, got.State)
	assert.Equal(t, "Lisbon, Portugal", got.Plans[0].Destination)
	assert.Equal(t, "CONF-alice", got.Executions["alice"].Payload)
	assert.False(t, got.SavedAt.IsZero())
}

func TestSessionStore_SaveReplacesRecord(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSessionStore(Config{Dir: dir}, nil)
	require.NoError(t, err)

	rec := testRecord()
	rec.State = negotiation.StateExecuting
	require.NoError(t, s.Save(rec))
	rec.State = negotiation.StateCompleted
	require.NoError(t, s.Save(rec))

	got, err := s.Load(rec.SessionID)
	require.NoError(t, err)
	assert.Equal(t, negotiation.StateCompleted, got.State)

	// No stray temp files after the rename.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestSessionStore_List(t *testing.T) {
	s, err := NewSessionStore(Config{Dir: t.TempDir()}, nil)
	require.NoError(t, err)

	for _, id := range []string{"b-session", "a-session"} {
		rec := testRecord()
		rec.SessionID = id
		require.NoError(t, s.Save(rec))
	}

	ids, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a-session", "b-session"}, ids)
}

func TestSessionStore_DisabledDropsWrites(t *testing.T) {
	s, err := NewSessionStore(Config{}, nil)
	require.NoError(t, err)
	assert.NoError(t, s.Save(testRecord()))

	_, err = s.Load("whatever")
	assert.Error(t, err)
}

func TestSessionStore_MissingID(t *testing.T) {
	s, err := NewSessionStore(Config{Dir: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.Error(t, s.Save(SessionRecord{}))
}

const profilesYAML = `
participants:
  - id: alice
    display_name: Alice
    preferences:
      budget_min: 800
      budget_max: 1500
      travel_style: museums and food
      dietary_restrictions: [vegetarian]
    identity:
      email: alice@example.com
      credential_ref: cred-alice
      payment_token_ref: pay-alice
    memories:
      - Loved the Alfama district on her last trip
      - Gets seasick on boats
  - id: bob
    display_name: Bob
    preferences:
      budget_min: 500
      budget_max: 1000
      travel_style: hiking
    identity:
      email: bob@example.com
`

func TestLoadProfiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(profilesYAML), 0o600))

	profiles, err := LoadProfiles(path)
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	alice := profiles[0]
	assert.Equal(t, "alice", alice.ID)
	assert.Equal(t, "Alice", alice.DisplayName)
	assert.Equal(t, 1500, alice.Preferences.BudgetMax)
	assert.Equal(t, []string{"vegetarian"}, alice.Preferences.DietaryRestrictions)
	assert.Equal(t, "cred-alice", alice.Identity.CredentialRef)
	assert.Len(t, alice.Memories, 2)

	bob := profiles[1]
	assert.Equal(t, "bob", bob.ID)
	assert.Empty(t, bob.Memories)

	parts := Participants(profiles)
	require.Len(t, parts, 2)
	assert.Equal(t, "alice", parts[0].ID)
}

func TestLoadProfiles_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadProfiles(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("participants: []\n"), 0o600))
	_, err = LoadProfiles(empty)
	assert.Error(t, err)

	noID := filepath.Join(dir, "noid.yaml")
	require.NoError(t, os.WriteFile(noID, []byte("participants:\n  - display_name: Ghost\n"), 0o600))
	_, err = LoadProfiles(noID)
	assert.Error(t, err)
}
