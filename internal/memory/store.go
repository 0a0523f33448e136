// Package memory stores participant memories in an embedded vector database.
//
// Each participant gets one chromem collection seeded from their profile at
// session start. Lookups run synchronously within an agent turn and return a
// small bulleted digest for prompt building.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voyaged/internal/registry"
)

// Config holds configuration for the memory store.
type Config struct {
	// Path is the directory for persistent storage. Empty means in-memory
	// only, which is what tests and single-run sessions want.
	Path string `koanf:"path"`

	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`

	// MaxResults bounds how many memories a lookup returns. Default 5.
	MaxResults int `koanf:"max_results"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxResults <= 0 {
		c.MaxResults = 5
	}
}

// Store is a chromem-go backed participant memory store.
type Store struct {
	db         *chromem.DB
	embed      chromem.EmbeddingFunc
	logger     *zap.Logger
	maxResults int
}

// NewStore creates a memory store. embed is required; chromem calls it for
// every stored and queried text.
func NewStore(cfg Config, embed chromem.EmbeddingFunc, logger *zap.Logger) (*Store, error) {
	if embed == nil {
		return nil, fmt.Errorf("embedding function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(cfg.Path, 0700); err != nil {
			return nil, fmt.Errorf("creating memory directory: %w", err)
		}
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening memory db: %w", err)
		}
	}

	return &Store{
		db:         db,
		embed:      embed,
		logger:     logger,
		maxResults: cfg.MaxResults,
	}, nil
}

// CollectionFor returns the collection name used for a participant.
func CollectionFor(p registry.Participant) string {
	if p.MemoryCollection != "" {
		return p.MemoryCollection
	}
	return "mem_" + sanitizeName(p.ID)
}

// sanitizeName maps an id onto chromem's allowed collection alphabet.
// A hash prefix backs ids that sanitize to nothing, to avoid collisions.
func sanitizeName(s string) string {
	original := s
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == ' ' || r == '_' || r == '.':
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		sum := sha256.Sum256([]byte(original))
		return "h_" + hex.EncodeToString(sum[:8])
	}
	return b.String()
}

// Seed stores a participant's memories, creating the collection if needed.
func (s *Store) Seed(ctx context.Context, p registry.Participant, memories []string) error {
	if len(memories) == 0 {
		return nil
	}

	coll, err := s.db.GetOrCreateCollection(CollectionFor(p), nil, s.embed)
	if err != nil {
		return fmt.Errorf("creating memory collection: %w", err)
	}

	docs := make([]chromem.Document, 0, len(memories))
	for i, m := range memories {
		if strings.TrimSpace(m) == "" {
			continue
		}
		docs = append(docs, chromem.Document{
			ID:      fmt.Sprintf("%s-%d-%d", p.ID, time.Now().UnixNano(), i),
			Content: m,
			Metadata: map[string]string{
				"participant_id": p.ID,
			},
		})
	}
	if len(docs) == 0 {
		return nil
	}

	if err := coll.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding memories: %w", err)
	}

	s.logger.Debug("seeded participant memories",
		zap.String("participant_id", p.ID),
		zap.Int("count", len(docs)),
	)
	return nil
}

// LookupMemory returns the participant's most relevant memories as a
// bulleted digest, or the empty string when none are stored.
func (s *Store) LookupMemory(ctx context.Context, p registry.Participant, query string) (string, error) {
	coll := s.db.GetCollection(CollectionFor(p), s.embed)
	if coll == nil {
		return "", nil
	}

	n := s.maxResults
	if count := coll.Count(); count < n {
		n = count
	}
	if n == 0 {
		return "", nil
	}

	results, err := coll.Query(ctx, query, n, nil, nil)
	if err != nil {
		return "", fmt.Errorf("querying memories: %w", err)
	}

	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "- %s\n", r.Content)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
