package negotiation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/voyaged/internal/agent"
	"github.com/fyrsmithlabs/voyaged/internal/registry"
	"github.com/fyrsmithlabs/voyaged/internal/transcript"
)

// SchedulerConfig configures one session's volley scheduling.
type SchedulerConfig struct {
	// Quota is the number of messages each participant produces per volley.
	Quota int `koanf:"quota"`

	// MaxTurnRetries bounds retries of a single failed turn before the
	// participant's remaining turns in the volley are skipped.
	MaxTurnRetries int `koanf:"max_turn_retries"`

	// RetryBackoff is the base delay between turn retries, doubled per
	// attempt.
	RetryBackoff time.Duration `koanf:"retry_backoff"`

	// MaxVolleyDuration is the fail-safe bound on one volley's wall time.
	// Zero means no bound.
	MaxVolleyDuration time.Duration `koanf:"max_volley_duration"`

	// TurnsPerSecond rate-limits agent turn calls. Zero disables limiting.
	TurnsPerSecond float64 `koanf:"turns_per_second"`
}

// ApplyDefaults sets default values for unset fields.
func (c *SchedulerConfig) ApplyDefaults() {
	if c.Quota <= 0 {
		c.Quota = 10
	}
	if c.MaxTurnRetries < 0 {
		c.MaxTurnRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
}

// VolleyResult summarizes one completed deliberation round.
type VolleyResult struct {
	Volley   int            `json:"volley"`
	Produced map[string]int `json:"produced"`
	Skipped  []string       `json:"skipped,omitempty"`
	TimedOut bool           `json:"timed_out,omitempty"`
}

// Scheduler drives exactly one volley at a time for a session: a fixed
// cursor over registration order, per-participant counters, and bounded
// retry-then-skip on turn failure.
type Scheduler struct {
	turns   agent.TurnGenerator
	limiter *rate.Limiter
	logger  *zap.Logger
	cfg     SchedulerConfig
}

// NewScheduler creates a scheduler around the given turn generator.
func NewScheduler(turns agent.TurnGenerator, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.TurnsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.TurnsPerSecond), 1)
	}
	return &Scheduler{
		turns:   turns,
		limiter: limiter,
		logger:  logger,
		cfg:     cfg,
	}
}

// RunVolley advances through participants in registration order until every
// participant has met the quota, appending all produced messages to the
// transcript. A positive quota overrides the configured per-participant
// count for this volley only. A volley seeded with rejection feedback first
// appends one synthetic system message carrying all feedback texts, so every
// agent's context includes why the previous plan failed.
func (s *Scheduler) RunVolley(
	ctx context.Context,
	volley int,
	quota int,
	reg *registry.Registry,
	tr *transcript.Transcript,
	feedback []string,
) (VolleyResult, error) {
	if quota <= 0 {
		quota = s.cfg.Quota
	}
	order := reg.Order()
	result := VolleyResult{
		Volley:   volley,
		Produced: make(map[string]int, len(order)),
	}
	if len(order) == 0 {
		return result, fmt.Errorf("no participants registered")
	}

	if s.cfg.MaxVolleyDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.MaxVolleyDuration)
		defer cancel()
	}

	if len(feedback) > 0 {
		tr.Append(transcript.SenderSystem, volley,
			"The previous plan was rejected. Feedback:\n- "+strings.Join(feedback, "\n- "),
			nil)
	}

	s.logger.Info("starting volley",
		zap.Int("volley", volley),
		zap.Int("participants", len(order)),
		zap.Int("quota", quota),
	)
	start := time.Now()

	skipped := make(map[string]bool, len(order))
	opening := volley == 0 && tr.Len() == 0
	cursor := 0
	for !quotaMet(result.Produced, skipped, order, quota) {
		if err := ctx.Err(); err != nil {
			// Fail-safe bound exceeded: the volley completes with whatever
			// was produced rather than blocking the session indefinitely.
			if s.cfg.MaxVolleyDuration > 0 && err == context.DeadlineExceeded {
				result.TimedOut = true
				s.logger.Warn("volley hit fail-safe time bound",
					zap.Int("volley", volley),
					zap.Duration("bound", s.cfg.MaxVolleyDuration),
				)
				break
			}
			return result, err
		}

		id := order[cursor%len(order)]
		cursor++
		if skipped[id] || result.Produced[id] >= quota {
			continue
		}

		participant, err := reg.Get(id)
		if err != nil {
			return result, err
		}

		tc := agent.TurnContext{
			Participant: participant,
			Transcript:  tr.Messages(),
			Feedback:    feedback,
			Opening:     opening,
			Volley:      volley,
		}
		turn, err := s.generateWithRetry(ctx, tc)
		if err != nil {
			// Retries exhausted: skip this participant's remaining turns
			// instead of blocking the whole volley.
			skipped[id] = true
			result.Skipped = append(result.Skipped, id)
			s.logger.Warn("skipping participant for remainder of volley",
				zap.String("participant_id", id),
				zap.Int("volley", volley),
				zap.Error(err),
			)
			continue
		}
		opening = false

		tr.Append(id, volley, turn.Content, turn.ToolCalls)
		result.Produced[id]++
	}

	s.logger.Info("volley complete",
		zap.Int("volley", volley),
		zap.Int("messages", tr.Len()),
		zap.Strings("skipped", result.Skipped),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// quotaMet reports whether every participant has either reached the quota or
// had its remaining turns skipped after exhausted retries.
func quotaMet(produced map[string]int, skipped map[string]bool, order []string, quota int) bool {
	for _, id := range order {
		if !skipped[id] && produced[id] < quota {
			return false
		}
	}
	return true
}

// generateWithRetry invokes one agent turn, retrying transient failures with
// doubling backoff up to the configured bound.
func (s *Scheduler) generateWithRetry(ctx context.Context, tc agent.TurnContext) (agent.TurnResult, error) {
	var lastErr error
	backoff := s.cfg.RetryBackoff

	for attempt := 0; attempt <= s.cfg.MaxTurnRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return agent.TurnResult{}, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return agent.TurnResult{}, err
			}
		}

		turn, err := s.turns.GenerateTurn(ctx, tc)
		if err == nil {
			return turn, nil
		}
		lastErr = err
		if !agent.IsTransient(err) {
			break
		}
		s.logger.Debug("retrying turn after transient failure",
			zap.String("participant_id", tc.Participant.ID),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return agent.TurnResult{}, lastErr
}
