// Package transport implements the outbound delivery side: the push
// provider, the SMS gateway and SMTP email. Every sender is fire-and-
// forget from the caller's perspective; retries and delivery receipts
// are the provider's business.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tolkly/bookingd/internal/circuitbreaker"
)

const defaultHTTPTimeout = 30 * time.Second

// sendAfterLayout is the scheduled-delivery format the push provider expects.
const sendAfterLayout = "2006-01-02 15:04:05 GMT-0700"

type PushConfig struct {
	URL     string
	AppID   string
	APIKey  string
	Timeout time.Duration
}

// PushSender posts notification batches to the push provider. A non-nil
// deliverAfter becomes the provider-side send_after field, so delayed
// delivery costs this process nothing.
type PushSender struct {
	cfg     PushConfig
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *log.Logger
}

func NewPushSender(cfg PushConfig, breaker *circuitbreaker.CircuitBreaker, logger *log.Logger) *PushSender {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	return &PushSender{
		cfg:     cfg,
		client:  &http.Client{},
		breaker: breaker,
		logger:  logger,
	}
}

type pushPayload struct {
	AppID            string            `json:"app_id"`
	IncludePlayerIDs []string          `json:"include_player_ids"`
	Contents         map[string]string `json:"contents"`
	Headings         map[string]string `json:"headings"`
	Data             map[string]string `json:"data"`
	SendAfter        string            `json:"send_after,omitempty"`
	IOSBadgeType     string            `json:"ios_badgeType"`
	IOSBadgeCount    int               `json:"ios_badgeCount"`
}

func (s *PushSender) Send(ctx context.Context, recipients []uuid.UUID, jobID uuid.UUID, notificationType, message string, deliverAfter *time.Time) error {
	if len(recipients) == 0 {
		return nil
	}
	if err := s.breaker.Allow(s.cfg.URL); err != nil {
		return fmt.Errorf("push provider: %w", err)
	}

	ids := make([]string, len(recipients))
	for i, r := range recipients {
		ids[i] = r.String()
	}
	payload := pushPayload{
		AppID:            s.cfg.AppID,
		IncludePlayerIDs: ids,
		Contents:         map[string]string{"en": message},
		Headings:         map[string]string{"en": "Tolkly"},
		Data: map[string]string{
			"notification_type": notificationType,
			"job_id":            jobID.String(),
		},
		IOSBadgeType:  "Increase",
		IOSBadgeCount: 1,
	}
	if deliverAfter != nil {
		payload.SendAfter = deliverAfter.Format(sendAfterLayout)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctxTimeout, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		s.breaker.RecordFailure(s.cfg.URL)
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		s.breaker.RecordFailure(s.cfg.URL)
		return fmt.Errorf("push provider returned %d", resp.StatusCode)
	}
	s.breaker.RecordSuccess(s.cfg.URL)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push provider rejected batch: %d", resp.StatusCode)
	}

	s.logger.Printf("transport: push job=%s recipients=%d delayed=%t", jobID, len(recipients), deliverAfter != nil)
	return nil
}
