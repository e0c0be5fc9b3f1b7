package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// HTTPService posts outcomes to an external settlement endpoint.
type HTTPService struct {
	url    string
	client *http.Client
}

func NewHTTPService(url string, timeout time.Duration) *HTTPService {
	return &HTTPService{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPService) NotifyOutcome(ctx context.Context, req Request) (Receipt, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Receipt{}, backoff.Permanent(fmt.Errorf("settlement: encode request: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, backoff.Permanent(fmt.Errorf("settlement: build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.ID)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return Receipt{}, fmt.Errorf("settlement: post: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return Receipt{}, fmt.Errorf("settlement: service returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Receipt{}, backoff.Permanent(fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, bytes.TrimSpace(msg)))
	}

	var rcpt Receipt
	if err := json.NewDecoder(resp.Body).Decode(&rcpt); err != nil {
		return Receipt{}, fmt.Errorf("settlement: decode receipt: %w", err)
	}
	return rcpt, nil
}

// LogService accepts every outcome and only logs it. It stands in for the
// payout service when none is configured.
type LogService struct {
	log *logrus.Entry
}

func NewLogService(log *logrus.Entry) *LogService {
	return &LogService{log: log.WithField("component", "settlement_log")}
}

func (s *LogService) NotifyOutcome(_ context.Context, req Request) (Receipt, error) {
	ref := uuid.NewString()
	s.log.WithFields(logrus.Fields{
		"room":      req.RoomCode,
		"result":    req.Outcome.Result,
		"winner":    req.Winner,
		"reference": ref,
	}).Info("settlement recorded without payout service")
	return Receipt{Accepted: true, Reference: ref}, nil
}
