// Package booking implements the execution-side booking client: one HTTP
// call per participant against a travel booking API, authenticated with that
// participant's own credential reference and nothing else.
package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voyaged/internal/execution"
)

// Config holds booking client configuration.
type Config struct {
	// Endpoint is the booking API base URL. Empty selects the simulated
	// booker, which confirms without any network call.
	Endpoint string `koanf:"endpoint"`

	// Timeout bounds a single booking HTTP call. The coordinator's task
	// timeout still applies on top.
	Timeout time.Duration `koanf:"timeout"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
}

// bookingPayload is the wire request for POST {endpoint}/bookings.
type bookingPayload struct {
	SessionID       string   `json:"session_id"`
	PlanID          string   `json:"plan_id"`
	Destination     string   `json:"destination"`
	DepartureDate   string   `json:"departure_date"`
	ReturnDate      string   `json:"return_date"`
	BudgetPerPerson int      `json:"budget_per_person"`
	Itinerary       []string `json:"itinerary,omitempty"`
	TravelerName    string   `json:"traveler_name"`
	TravelerEmail   string   `json:"traveler_email"`
	TravelerPhone   string   `json:"traveler_phone,omitempty"`
	PaymentTokenRef string   `json:"payment_token_ref,omitempty"`
}

// bookingReply is the wire response.
type bookingReply struct {
	Confirmation string `json:"confirmation"`
	Error        string `json:"error,omitempty"`
}

// Client books trips against an HTTP API. It implements execution.Booker.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *zap.Logger
}

var _ execution.Booker = (*Client)(nil)

// NewClient creates a booking client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint: cfg.Endpoint,
		http:     &http.Client{Timeout: cfg.Timeout},
		logger:   logger,
	}
}

// Book places one participant's booking. Only that participant's identity
// and payment references go over the wire.
func (c *Client) Book(ctx context.Context, req execution.Request) (string, error) {
	payload := bookingPayload{
		SessionID:       req.SessionID,
		PlanID:          req.PlanID,
		Destination:     req.Destination,
		DepartureDate:   req.DepartureDate,
		ReturnDate:      req.ReturnDate,
		BudgetPerPerson: req.BudgetPerPerson,
		Itinerary:       req.Itinerary,
		TravelerName:    req.Participant.DisplayName,
		TravelerEmail:   req.Participant.Identity.Email,
		TravelerPhone:   req.Participant.Identity.Phone,
		PaymentTokenRef: req.Participant.Identity.PaymentTokenRef,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding booking request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/bookings", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building booking request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if ref := req.Participant.Identity.CredentialRef; ref != "" {
		httpReq.Header.Set("Authorization", "Bearer "+ref)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("booking call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading booking response: %w", err)
	}

	var reply bookingReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", fmt.Errorf("decoding booking response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg := reply.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("booking rejected (status %d): %s", resp.StatusCode, msg)
	}
	if reply.Confirmation == "" {
		return "", fmt.Errorf("booking response missing confirmation")
	}

	c.logger.Info("booking confirmed",
		zap.String("participant_id", req.Participant.ID),
		zap.String("plan_id", req.PlanID),
		zap.String("confirmation", reply.Confirmation),
	)
	return reply.Confirmation, nil
}

// Simulator is an in-process booker for local runs and demos: it confirms
// every booking after a fixed delay without leaving the process.
type Simulator struct {
	Delay time.Duration
}

var _ execution.Booker = (*Simulator)(nil)

// Book confirms the booking after the configured delay, honoring
// cancellation.
func (s *Simulator) Book(ctx context.Context, req execution.Request) (string, error) {
	if s.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.Delay):
		}
	}
	ref := req.PlanID
	if len(ref) > 8 {
		ref = ref[:8]
	}
	return fmt.Sprintf("SIM-%s-%s", req.Participant.ID, ref), nil
}

// New returns the booker for the given config: the HTTP client when an
// endpoint is configured, the simulator otherwise.
func New(cfg Config, logger *zap.Logger) execution.Booker {
	cfg.ApplyDefaults()
	if cfg.Endpoint == "" {
		return &Simulator{}
	}
	return NewClient(cfg, logger)
}
