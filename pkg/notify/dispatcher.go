// Package notify delivers lifecycle events to per-process webhook URLs
// through an asynq queue, so delivery retries and backoff never touch the
// engine's transactions.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"procgrid/internal/model"
	"procgrid/pkg/config"
	"procgrid/pkg/logger"

	"github.com/hibiken/asynq"
)

const (
	TypeWebhookDeliver = "lifecycle:webhook"
)

// webhookPayload is the queued delivery job.
type webhookPayload struct {
	URL   string                `json:"url"`
	Event *model.LifecycleEvent `json:"event"`
}

// Dispatcher queues and delivers webhook notifications.
type Dispatcher struct {
	client     *asynq.Client
	server     *asynq.Server
	mux        *asynq.ServeMux
	httpClient *http.Client
	maxRetry   int
}

// NewDispatcher creates the webhook dispatcher.
func NewDispatcher(cfg *config.Config) (*Dispatcher, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	concurrency := cfg.Notify.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	client := asynq.NewClient(redisOpt)
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"default": 10,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * time.Second
			},
		},
	)

	timeout := time.Duration(cfg.Notify.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	maxRetry := cfg.Notify.MaxRetry
	if maxRetry <= 0 {
		maxRetry = 5
	}

	d := &Dispatcher{
		client:     client,
		server:     server,
		mux:        asynq.NewServeMux(),
		httpClient: &http.Client{Timeout: timeout},
		maxRetry:   maxRetry,
	}
	d.mux.HandleFunc(TypeWebhookDeliver, d.handleDeliver)

	return d, nil
}

// Enqueue queues a webhook delivery for the event. Events without a webhook
// URL are skipped.
func (d *Dispatcher) Enqueue(ctx context.Context, ev *model.LifecycleEvent) error {
	if ev.WebhookURL == "" {
		return nil
	}

	payload, err := json.Marshal(&webhookPayload{URL: ev.WebhookURL, Event: ev})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	task := asynq.NewTask(TypeWebhookDeliver, payload)
	opts := []asynq.Option{
		asynq.TaskID(ev.EventID),
		asynq.MaxRetry(d.maxRetry),
	}

	info, err := d.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue webhook delivery: %w", err)
	}

	logger.InfoCtx(ctx, "webhook delivery enqueued, event_id: %s, queue: %s", ev.EventID, info.Queue)
	return nil
}

// handleDeliver POSTs the event JSON to the webhook URL. Non-2xx responses
// are errors so asynq retries them.
func (d *Dispatcher) handleDeliver(ctx context.Context, task *asynq.Task) error {
	var payload webhookPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal webhook payload: %w", err)
	}

	body, err := payload.Event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal lifecycle event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, payload.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	logger.InfoCtx(ctx, "webhook delivered, event_id: %s, url: %s", payload.Event.EventID, payload.URL)
	return nil
}

// Start starts the delivery workers.
func (d *Dispatcher) Start() error {
	logger.InfoCtx(context.Background(), "starting webhook delivery workers")
	return d.server.Start(d.mux)
}

// Stop stops the delivery workers.
func (d *Dispatcher) Stop() {
	logger.InfoCtx(context.Background(), "stopping webhook delivery workers")
	d.server.Stop()
	d.server.Shutdown()
}

// Close closes the queue client.
func (d *Dispatcher) Close() error {
	return d.client.Close()
}
