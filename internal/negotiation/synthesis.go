package negotiation

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voyaged/internal/agent"
	"github.com/fyrsmithlabs/voyaged/internal/registry"
	"github.com/fyrsmithlabs/voyaged/internal/transcript"
)

// SynthesisConfig configures the plan-synthesis step.
type SynthesisConfig struct {
	// MaxRetries bounds re-generation after a format failure or transient
	// error before the session fails.
	MaxRetries int `koanf:"max_retries"`

	// RetryBackoff is the delay between synthesis retries.
	RetryBackoff time.Duration `koanf:"retry_backoff"`
}

// ApplyDefaults sets default values for unset fields.
func (c *SynthesisConfig) ApplyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
}

// Engine turns a completed transcript into one candidate plan. It holds no
// negotiation logic of its own: one opaque generation call, parsed and
// validated, retried a bounded number of times.
type Engine struct {
	synth  agent.Synthesizer
	logger *zap.Logger
	cfg    SynthesisConfig
}

// NewEngine creates a synthesis engine.
func NewEngine(synth agent.Synthesizer, cfg SynthesisConfig, logger *zap.Logger) *Engine {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{synth: synth, logger: logger, cfg: cfg}
}

// Synthesize produces the plan for a completed volley. The returned plan is
// stamped with the volley index and participant ids. A format failure after
// all retries surfaces as ErrSynthesisFormat; there is no fallback plan.
func (e *Engine) Synthesize(
	ctx context.Context,
	tr *transcript.Transcript,
	participants []registry.Participant,
	volley int,
) (Plan, error) {
	sc := agent.SynthesisContext{
		Transcript:   tr.Messages(),
		Participants: participants,
		Volley:       volley,
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Plan{}, ctx.Err()
			case <-time.After(e.cfg.RetryBackoff):
			}
		}

		raw, err := e.synth.Synthesize(ctx, sc)
		if err != nil {
			lastErr = err
			if agent.IsTransient(err) {
				continue
			}
			return Plan{}, err
		}

		plan, err := ParsePlan(raw)
		if err != nil {
			lastErr = err
			if errors.Is(err, ErrSynthesisFormat) {
				e.logger.Warn("synthesis output rejected",
					zap.Int("volley", volley),
					zap.Int("attempt", attempt+1),
					zap.Error(err),
				)
				continue
			}
			return Plan{}, err
		}

		plan.Volley = volley
		plan.Participants = make([]string, 0, len(participants))
		for _, p := range participants {
			plan.Participants = append(plan.Participants, p.ID)
		}

		e.logger.Info("plan synthesized",
			zap.String("plan_id", plan.ID),
			zap.Int("volley", volley),
			zap.String("destination", plan.Destination),
			zap.Int("budget_per_person", plan.BudgetPerPerson),
		)
		return plan, nil
	}

	return Plan{}, lastErr
}
