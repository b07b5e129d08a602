package transport

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tolkly/bookingd/internal/circuitbreaker"
)

type SMSConfig struct {
	URL     string
	Token   string
	From    string
	Timeout time.Duration
}

// SMSSender posts one message per call to the SMS gateway.
type SMSSender struct {
	cfg     SMSConfig
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *log.Logger
}

func NewSMSSender(cfg SMSConfig, breaker *circuitbreaker.CircuitBreaker, logger *log.Logger) *SMSSender {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	return &SMSSender{
		cfg:     cfg,
		client:  &http.Client{},
		breaker: breaker,
		logger:  logger,
	}
}

func (s *SMSSender) Send(ctx context.Context, toNumber, message string) error {
	if toNumber == "" {
		return fmt.Errorf("empty recipient number")
	}
	if err := s.breaker.Allow(s.cfg.URL); err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}

	form := url.Values{}
	form.Set("from", s.cfg.From)
	form.Set("to", toNumber)
	form.Set("message", message)

	ctxTimeout, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctxTimeout, http.MethodPost, s.cfg.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)

	resp, err := s.client.Do(req)
	if err != nil {
		s.breaker.RecordFailure(s.cfg.URL)
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		s.breaker.RecordFailure(s.cfg.URL)
		return fmt.Errorf("sms gateway returned %d", resp.StatusCode)
	}
	s.breaker.RecordSuccess(s.cfg.URL)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sms gateway rejected message: %d", resp.StatusCode)
	}
	return nil
}
