package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/voyaged/internal/registry"
)

// bookerFunc adapts a function to the Booker interface.
type bookerFunc func(ctx context.Context, req Request) (string, error)

func (f bookerFunc) Book(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

func makeRequests(ids ...string) []Request {
	reqs := make([]Request, 0, len(ids))
	for _, id := range ids {
		reqs = append(reqs, Request{
			SessionID:   "sess-1",
			PlanID:      "plan-1",
			Participant: registry.Participant{ID: id},
			Destination: "Lisbon",
		})
	}
	return reqs
}

func TestCoordinator_AllSucceed(t *testing.T) {
	c := NewCoordinator(bookerFunc(func(_ context.Context, req Request) (string, error) {
		return "CONF-" + req.Participant.ID, nil
	}), Config{}, nil)

	results := c.Execute(context.Background(), makeRequests("alice", "bob", "carol"))

	require.Len(t, results, 3)
	for id, res := range results {
		assert.Equal(t, KindSucceeded, res.Kind, id)
		assert.Equal(t, "CONF-"+id, res.Payload)
		assert.Empty(t, res.ErrorKind)
	}
}

func TestCoordinator_FailureIsolation(t *testing.T) {
	c := NewCoordinator(bookerFunc(func(_ context.Context, req Request) (string, error) {
		if req.Participant.ID == "bob" {
			return "", errors.New("payment declined")
		}
		return "CONF-" + req.Participant.ID, nil
	}), Config{}, nil)

	results := c.Execute(context.Background(), makeRequests("alice", "bob", "carol"))

	assert.Equal(t, KindSucceeded, results["alice"].Kind)
	assert.Equal(t, KindSucceeded, results["carol"].Kind)

	bob := results["bob"]
	assert.Equal(t, KindFailed, bob.Kind)
	assert.Equal(t, ErrorBooking, bob.ErrorKind)
	assert.Equal(t, "payment declined", bob.Message)
	// The failure never leaks into another participant's result.
	assert.NotContains(t, results["alice"].Message, "declined")
}

func TestCoordinator_TasksRunConcurrently(t *testing.T) {
	const n = 4
	var mu sync.Mutex
	running, peak := 0, 0

	c := NewCoordinator(bookerFunc(func(_ context.Context, _ Request) (string, error) {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()

		time.Sleep(30 * time.Millisecond)

		mu.Lock()
		running--
		mu.Unlock()
		return "ok", nil
	}), Config{}, nil)

	c.Execute(context.Background(), makeRequests("a", "b", "c", "d"))

	mu.Lock()
	defer mu.Unlock()
	assert.Greater(t, peak, 1, "tasks should overlap, not run sequentially")
}

func TestCoordinator_TimeoutAbandonsStuckTask(t *testing.T) {
	c := NewCoordinator(bookerFunc(func(ctx context.Context, req Request) (string, error) {
		if req.Participant.ID == "stuck" {
			// Ignores cancellation entirely.
			time.Sleep(5 * time.Second)
			return "too late", nil
		}
		return "CONF-" + req.Participant.ID, nil
	}), Config{TaskTimeout: 25 * time.Millisecond}, nil)

	start := time.Now()
	results := c.Execute(context.Background(), makeRequests("alice", "stuck"))

	assert.Less(t, time.Since(start), 2*time.Second,
		"a stuck task must be abandoned at its deadline")
	assert.Equal(t, KindSucceeded, results["alice"].Kind)

	stuck := results["stuck"]
	assert.Equal(t, KindFailed, stuck.Kind)
	assert.Equal(t, ErrorTimeout, stuck.ErrorKind)
}

func TestCoordinator_CancellationMarksTasksCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	c := NewCoordinator(bookerFunc(func(ctx context.Context, _ Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}), Config{TaskTimeout: time.Minute}, nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	results := c.Execute(ctx, makeRequests("alice", "bob"))

	for id, res := range results {
		assert.Equal(t, KindFailed, res.Kind, id)
		assert.Equal(t, ErrorCancelled, res.ErrorKind, id)
	}
}

func TestCoordinator_NoRequests(t *testing.T) {
	c := NewCoordinator(bookerFunc(func(_ context.Context, _ Request) (string, error) {
		t.Fatal("booker must not be called")
		return "", nil
	}), Config{}, nil)

	results := c.Execute(context.Background(), nil)
	assert.Empty(t, results)
}
