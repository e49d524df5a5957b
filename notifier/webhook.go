package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"synbl/logger"

	"golang.org/x/time/rate"
)

type WebhookMessage struct {
	Text      string            `json:"text"`
	Timestamp time.Time         `json:"timestamp"`
	Severity  string            `json:"severity"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Webhook posts alerts to a URL. A flood produces bans far faster than any
// chat channel wants them, so sends beyond the limiter are dropped.
type Webhook struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	wg      sync.WaitGroup
}

func NewWebhook(url string, perSecond float64, burst int) *Webhook {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &Webhook{
		url:     url,
		client:  &http.Client{Timeout: 5 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// SendAlert queues msg for delivery and reports whether it was accepted by
// the rate limiter.
func (w *Webhook) SendAlert(msg, severity string, fields map[string]string) bool {
	if w == nil || w.url == "" {
		return false
	}
	if !w.limiter.Allow() {
		logger.Debug("Webhook alert suppressed by rate limit", "msg", msg)
		return false
	}

	payload := WebhookMessage{
		Text:      fmt.Sprintf("[synbl] %s", msg),
		Timestamp: time.Now(),
		Severity:  severity,
		Fields:    fields,
	}
	data, _ := json.Marshal(payload)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		resp, err := w.client.Post(w.url, "application/json", bytes.NewBuffer(data))
		if err != nil {
			logger.Error("Failed to send webhook alert", "err", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
			logger.Warn("Webhook returned non-OK status", "status", resp.Status)
		}
	}()
	return true
}

// Flush waits for in-flight deliveries.
func (w *Webhook) Flush() {
	if w != nil {
		w.wg.Wait()
	}
}
