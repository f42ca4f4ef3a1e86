// Package notify pushes rule-trigger batches to an operator-configured
// webhook. Delivery is best-effort: the broadcast loop never waits on it and
// failures are only logged.
package notify

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/suhasdevmane/Abacws/internal/domain"
)

// Notifier is consumed by the broadcast loop.
type Notifier interface {
	NotifyTriggers(device string, events []domain.TriggerEvent)
}

// Webhook POSTs trigger batches as JSON.
type Webhook struct {
	client *resty.Client
	url    string
	logger *zap.Logger
}

// triggerBatch is the webhook payload.
type triggerBatch struct {
	Device    string                `json:"device"`
	Events    []domain.TriggerEvent `json:"events"`
	Timestamp int64                 `json:"ts"`
}

func NewWebhook(url string, timeout time.Duration, logger *zap.Logger) *Webhook {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("Content-Type", "application/json")
	return &Webhook{client: client, url: url, logger: logger}
}

func (w *Webhook) NotifyTriggers(device string, events []domain.TriggerEvent) {
	if len(events) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		resp, err := w.client.R().
			SetContext(ctx).
			SetBody(triggerBatch{Device: device, Events: events, Timestamp: time.Now().UnixMilli()}).
			Post(w.url)
		if err != nil {
			w.logger.Warn("rule webhook delivery failed",
				zap.String("device", device),
				zap.Error(err),
			)
			return
		}
		if resp.IsError() {
			w.logger.Warn("rule webhook rejected",
				zap.String("device", device),
				zap.Int("status", resp.StatusCode()),
			)
		}
	}()
}

// Noop discards notifications; used when no webhook URL is configured.
type Noop struct{}

func (Noop) NotifyTriggers(string, []domain.TriggerEvent) {}
