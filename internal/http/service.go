package http

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voyaged/internal/execution"
	"github.com/fyrsmithlabs/voyaged/internal/negotiation"
	"github.com/fyrsmithlabs/voyaged/internal/registry"
	"github.com/fyrsmithlabs/voyaged/internal/store"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// Service owns the live sessions and the persistence hooks around them.
// Sessions share the scheduler, synthesis engine, and coordinator; all
// per-session state lives in the session itself.
type Service struct {
	scheduler   *negotiation.Scheduler
	engine      *negotiation.Engine
	coordinator *execution.Coordinator
	sessions    *store.SessionStore
	defaults    []registry.Participant
	sessionCfg  negotiation.SessionConfig
	logger      *zap.Logger

	mu   sync.RWMutex
	live map[string]*negotiation.Session

	// watchers tracks the per-session goroutines persisting terminal
	// records; Close joins them so no write lands after teardown.
	watchers  sync.WaitGroup
	closed    chan struct{}
	closeOnce sync.Once
}

// NewService creates the session service. defaults are the participants
// used when a start request names none.
func NewService(
	scheduler *negotiation.Scheduler,
	engine *negotiation.Engine,
	coordinator *execution.Coordinator,
	sessions *store.SessionStore,
	defaults []registry.Participant,
	sessionCfg negotiation.SessionConfig,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		scheduler:   scheduler,
		engine:      engine,
		coordinator: coordinator,
		sessions:    sessions,
		defaults:    defaults,
		sessionCfg:  sessionCfg,
		logger:      logger,
		live:        make(map[string]*negotiation.Session),
		closed:      make(chan struct{}),
	}
}

// Start creates a session and runs its first volley plus synthesis. The
// call returns once a plan is awaiting approval, or with the failed session
// when synthesis could not produce one.
func (s *Service) Start(ctx context.Context, participants []registry.Participant, messagesPerVolley int) (*negotiation.Session, error) {
	if len(participants) == 0 {
		participants = s.defaults
	}

	cfg := s.sessionCfg
	if messagesPerVolley > 0 {
		cfg.MessagesPerVolley = messagesPerVolley
	}

	sess, err := negotiation.NewSession(participants, s.scheduler, s.engine,
		s.coordinator, cfg, s.logger)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.live[sess.ID] = sess
	s.mu.Unlock()

	// Persist the terminal record once execution finishes; every other
	// transition is persisted by the call that caused it.
	s.watchers.Add(1)
	go func() {
		defer s.watchers.Done()
		select {
		case <-sess.Done():
			s.persist(sess)
		case <-s.closed:
		}
	}()

	startErr := sess.Start(ctx)
	s.persist(sess)
	if startErr != nil {
		return sess, fmt.Errorf("starting session %s: %w", sess.ID, startErr)
	}
	return sess, nil
}

// Get returns a live session by id.
func (s *Service) Get(id string) (*negotiation.Session, error) {
	s.mu.RLock()
	sess, ok := s.live[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// Approve records an approval.
func (s *Service) Approve(ctx context.Context, id, participantID string) (*negotiation.Session, error) {
	sess, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	err = sess.Approve(ctx, participantID)
	s.persist(sess)
	return sess, err
}

// Reject records a rejection with feedback. When the rejection closes the
// round, the next volley and synthesis run before this returns.
func (s *Service) Reject(ctx context.Context, id, participantID, feedback string) (*negotiation.Session, error) {
	sess, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	err = sess.Reject(ctx, participantID, feedback)
	s.persist(sess)
	return sess, err
}

// Cancel aborts a session.
func (s *Service) Cancel(id string) (*negotiation.Session, error) {
	sess, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	sess.Cancel()
	s.persist(sess)
	return sess, nil
}

// Close stops the terminal-record watchers and waits for any in-flight
// persistence to land. Live sessions are left running; callers cancel them
// separately if they want a hard stop.
func (s *Service) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
	s.watchers.Wait()
}

// List returns the ids of every live session.
func (s *Service) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.live))
	for id := range s.live {
		ids = append(ids, id)
	}
	return ids
}

func (s *Service) persist(sess *negotiation.Session) {
	st := sess.Status()
	rec := store.SessionRecord{
		SessionID:    sess.ID,
		State:        st.State,
		Reason:       st.Reason,
		Participants: sess.Participants(),
		Plans:        sess.Plans(),
		Messages:     sess.Messages(),
		Executions:   st.Executions,
	}
	if err := s.sessions.Save(rec); err != nil {
		s.logger.Warn("failed to persist session record",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
	}
}
