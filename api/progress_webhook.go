package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jmcleod/backdrop/editor"
)

// DefaultWebhookQueueSize is the bounded channel capacity for outbound
// progress events.
const DefaultWebhookQueueSize = 256

// webhookEvent is the JSON payload POSTed to the external endpoint.
type webhookEvent struct {
	UserID    string `json:"user_id"`
	Stage     string `json:"stage"`
	Percent   int    `json:"percent"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ProgressWebhook forwards progress checkpoints to an external HTTP endpoint.
// Events are enqueued non-blockingly into a bounded channel and sent by a
// background goroutine. If the channel is full, events are dropped.
type ProgressWebhook struct {
	url    string
	client *http.Client
	logger *slog.Logger
	events chan webhookEvent
	wg     sync.WaitGroup
	once   sync.Once
	retry  time.Duration
}

var _ editor.Progress = (*ProgressWebhook)(nil)

// NewProgressWebhook creates a webhook dispatcher and starts its background
// loop. A queueSize below one uses DefaultWebhookQueueSize.
func NewProgressWebhook(url string, queueSize int, logger *slog.Logger) *ProgressWebhook {
	if queueSize < 1 {
		queueSize = DefaultWebhookQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &ProgressWebhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With("component", "progress_webhook"),
		events: make(chan webhookEvent, queueSize),
		retry:  time.Second,
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

// Notify enqueues a checkpoint. It never blocks.
func (w *ProgressWebhook) Notify(ctx context.Context, userID string, stage editor.Stage, percent int) {
	w.enqueue(webhookEvent{
		UserID:    userID,
		Stage:     string(stage),
		Percent:   percent,
		RequestID: requestIDFromContext(ctx),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (w *ProgressWebhook) enqueue(evt webhookEvent) {
	select {
	case w.events <- evt:
	default:
		w.logger.Warn("queue full, dropping event", "user_id", evt.UserID, "stage", evt.Stage)
	}
}

// Close shuts down the dispatcher after draining queued events. Notify must
// not be called after Close.
func (w *ProgressWebhook) Close() {
	w.once.Do(func() {
		close(w.events)
		w.wg.Wait()
	})
}

func (w *ProgressWebhook) loop() {
	defer w.wg.Done()
	for evt := range w.events {
		w.send(evt)
	}
}

// send POSTs the event to the configured URL with one retry on 5xx.
func (w *ProgressWebhook) send(evt webhookEvent) {
	body, err := json.Marshal(evt)
	if err != nil {
		w.logger.Warn("marshal failed", "error", err)
		return
	}

	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			time.Sleep(w.retry)
		}

		req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			w.logger.Warn("request creation failed", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "Backdrop-Progress-Webhook/1.0")

		resp, err := w.client.Do(req)
		if err != nil {
			w.logger.Warn("request failed", "error", err, "attempt", attempt+1)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return
		}
		if resp.StatusCode >= 500 {
			w.logger.Warn("server error", "status", resp.StatusCode, "attempt", attempt+1)
			continue
		}
		w.logger.Warn("client error", "status", resp.StatusCode)
		return
	}
}
