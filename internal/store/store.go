// Package store persists session outcomes and loads participant profiles.
//
// Sessions are engine-owned in memory while live; the store keeps an
// audit record on disk per terminal session write. Records are written
// atomically (temp file plus rename) so a crash never leaves a torn file.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voyaged/internal/execution"
	"github.com/fyrsmithlabs/voyaged/internal/negotiation"
	"github.com/fyrsmithlabs/voyaged/internal/registry"
	"github.com/fyrsmithlabs/voyaged/internal/transcript"
)

// Config holds store configuration.
type Config struct {
	// Dir is the directory session records are written to. Empty disables
	// persistence.
	Dir string `koanf:"dir"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {}

// SessionRecord is the on-disk shape of one session.
type SessionRecord struct {
	SessionID    string                      `json:"session_id"`
	State        negotiation.State           `json:"state"`
	Reason       negotiation.FailureReason   `json:"reason,omitempty"`
	Participants []registry.Participant      `json:"participants"`
	Plans        []negotiation.Plan          `json:"plans,omitempty"`
	Messages     []transcript.Message        `json:"messages"`
	Executions   map[string]execution.Result `json:"executions,omitempty"`
	SavedAt      time.Time                   `json:"saved_at"`
}

// SessionStore writes and reads session records under one directory.
type SessionStore struct {
	dir    string
	logger *zap.Logger
}

// NewSessionStore creates the store, creating the directory if needed. A
// nil store (empty dir) is valid and drops every write.
func NewSessionStore(cfg Config, logger *zap.Logger) (*SessionStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Dir == "" {
		return &SessionStore{logger: logger}, nil
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating session store dir: %w", err)
	}
	return &SessionStore{dir: cfg.Dir, logger: logger}, nil
}

// Save writes the record atomically. Saving the same session again replaces
// the previous record.
func (s *SessionStore) Save(rec SessionRecord) error {
	if s.dir == "" {
		return nil
	}
	if rec.SessionID == "" {
		return fmt.Errorf("session record missing session id")
	}
	rec.SavedAt = time.Now().UTC()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session record: %w", err)
	}

	final := s.path(rec.SessionID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing session record: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalizing session record: %w", err)
	}

	s.logger.Debug("session record saved",
		zap.String("session_id", rec.SessionID),
		zap.String("state", string(rec.State)),
	)
	return nil
}

// Load reads one session record.
func (s *SessionStore) Load(sessionID string) (SessionRecord, error) {
	var rec SessionRecord
	if s.dir == "" {
		return rec, fmt.Errorf("session store disabled")
	}
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		return rec, fmt.Errorf("reading session record: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decoding session record %s: %w", sessionID, err)
	}
	return rec, nil
}

// List returns the ids of all persisted sessions, sorted.
func (s *SessionStore) List() ([]string, error) {
	if s.dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing session records: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *SessionStore) path(sessionID string) string {
	// Session ids are uuids we minted; the Base call keeps a corrupted id
	// from escaping the directory.
	return filepath.Join(s.dir, filepath.Base(sessionID)+".json")
}
