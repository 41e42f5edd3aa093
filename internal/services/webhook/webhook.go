// Package webhook sends job event notifications to a configured URL.
//
// Payloads are JSON and, when a secret is configured, signed with
// HMAC-SHA256 in the X-Webhook-Signature header so receivers can verify
// they came from this server.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Shimizu-Technology/pdf-tools-api/internal/logger"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/models"
)

// Job events.
const (
	EventJobReady  = "job.ready"  // previews rendered
	EventJobFailed = "job.failed" // preview rendering failed
	EventJobEdited = "job.edited" // an edit batch was saved
)

// Service handles webhook notification delivery.
type Service struct {
	url    string
	secret string
	client *http.Client
	log    *logger.Logger

	// Wait before each attempt; the first is normally zero.
	retryDelays []time.Duration

	shutdownCh chan struct{} // Signals pending deliveries to stop
	once       sync.Once
	wg         sync.WaitGroup
}

// New creates a webhook service posting to url. A nil *Service is valid
// and drops every event, so callers can skip the nil checks when webhooks
// are not configured.
func New(url, secret string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		url:    url,
		secret: secret,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log:         log.WithComponent("webhook"),
		retryDelays: []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second},
		shutdownCh:  make(chan struct{}),
	}
}

// Shutdown signals all pending webhook deliveries to stop and waits for
// them to return. Call this during graceful server shutdown.
func (s *Service) Shutdown() {
	if s == nil {
		return
	}
	s.once.Do(func() { close(s.shutdownCh) })
	s.wg.Wait()
}

// SignPayload creates an HMAC-SHA256 signature for a payload.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// NotifyJob sends event for job. Delivery happens asynchronously with
// retry logic.
func (s *Service) NotifyJob(event string, job *models.Job) {
	if s == nil || job == nil {
		return
	}

	select {
	case <-s.shutdownCh:
		return
	default:
	}

	payload := models.WebhookPayload{
		Event:     event,
		JobID:     job.ID,
		Kind:      job.Kind,
		Status:    job.Status,
		PageCount: job.PageCount,
		EditCount: job.EditCount,
		Error:     job.ErrorMessage,
		Timestamp: time.Now().UTC(),
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event", event).Msg("failed to marshal webhook payload")
		return
	}

	// Fire and forget; Shutdown waits for stragglers.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deliverWithRetry(event, job.ID, payloadJSON)
	}()
}

// deliverWithRetry attempts delivery with increasing delays between
// attempts. It gives up early on shutdown.
func (s *Service) deliverWithRetry(event, jobID string, payloadJSON []byte) {
	// Generous timeout for the whole retry sequence
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	log := s.log.WithJob(jobID)
	var lastErr string

	for attempt, delay := range s.retryDelays {
		if delay > 0 {
			select {
			case <-s.shutdownCh:
				log.Warn().Str("event", event).Msg("webhook delivery aborted due to shutdown")
				return
			case <-ctx.Done():
				log.Warn().Str("event", event).Msg("webhook delivery timed out")
				return
			case <-time.After(delay):
			}
		}

		statusCode, err := s.deliver(ctx, payloadJSON)
		if err == nil && statusCode >= 200 && statusCode < 300 {
			log.Info().Str("event", event).Int("attempt", attempt+1).Msg("webhook delivered")
			return
		}

		if err != nil {
			lastErr = err.Error()
		} else {
			lastErr = fmt.Sprintf("HTTP %d", statusCode)
		}
		log.Warn().
			Str("event", event).
			Int("attempt", attempt+1).
			Int("max_attempts", len(s.retryDelays)).
			Str("error", lastErr).
			Msg("webhook delivery failed")
	}

	log.Error().Str("event", event).Str("error", lastErr).Msg("webhook delivery failed permanently")
}

// deliver sends a single webhook HTTP request with context support.
func (s *Service) deliver(ctx context.Context, payloadJSON []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payloadJSON))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "PDFToolsAPI-Webhook/1.0")

	// Sign with HMAC-SHA256 if secret is set
	if s.secret != "" {
		req.Header.Set("X-Webhook-Signature", SignPayload(payloadJSON, s.secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}
