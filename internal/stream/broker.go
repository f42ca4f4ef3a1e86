// Package stream drives the timer-based broadcast loop: while subscribers
// exist, each tick fetches the batched external latest values, evaluates
// rules for every device present in the batch, and pushes events to all
// subscribers. Per-tick errors are logged and swallowed so one failing
// mapping cannot stop event delivery.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/suhasdevmane/Abacws/internal/datastore"
	"github.com/suhasdevmane/Abacws/internal/domain"
	"github.com/suhasdevmane/Abacws/internal/notify"
	"github.com/suhasdevmane/Abacws/internal/rules"
)

// DefaultInterval is the broadcast cadence.
const DefaultInterval = 8 * time.Second

// subscriber channels are buffered; a slow consumer drops events rather than
// stalling the loop.
const subscriberBuffer = 16

// Event is one server-sent event: a name and a JSON-serializable payload.
type Event struct {
	Name string
	Data any
}

// LatestPayload is the "latest" event body.
type LatestPayload struct {
	Type string                        `json:"type"`
	Data map[string]domain.LatestEntry `json:"data"`
	TS   int64                         `json:"ts"`
}

// RulesPayload is the "rules" event body.
type RulesPayload struct {
	Type   string                `json:"type"`
	Device string                `json:"device"`
	Events []domain.TriggerEvent `json:"events"`
	TS     int64                 `json:"ts"`
}

// Broker owns the subscriber registry and the broadcast loop lifecycle. The
// loop starts lazily on first subscription and keeps running until the root
// context is cancelled at shutdown; it idles cheaply while no subscribers
// remain.
type Broker struct {
	store    datastore.Datastore
	engine   *rules.Engine
	notifier notify.Notifier
	interval time.Duration
	logger   *zap.Logger

	ctx context.Context

	mu      sync.Mutex
	subs    map[string]chan Event
	started bool
}

func NewBroker(ctx context.Context, store datastore.Datastore, engine *rules.Engine, notifier notify.Notifier, interval time.Duration, logger *zap.Logger) *Broker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Broker{
		store:    store,
		engine:   engine,
		notifier: notifier,
		interval: interval,
		logger:   logger,
		ctx:      ctx,
		subs:     map[string]chan Event{},
	}
}

// Subscribe registers a new subscriber and lazily starts the loop.
func (b *Broker) Subscribe() (string, <-chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.subs[id] = ch
	shouldStart := !b.started
	b.started = true
	b.mu.Unlock()

	if shouldStart {
		go b.loop()
	}
	return id, ch
}

func (b *Broker) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Subscribers returns the current subscriber count.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broker) broadcast(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Debug("dropping event for slow subscriber",
				zap.String("subscriber", id),
				zap.String("event", ev.Name),
			)
		}
	}
}

func (b *Broker) loop() {
	b.logger.Info("broadcast loop started", zap.Duration("interval", b.interval))
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.tick()
		case <-b.ctx.Done():
			b.logger.Info("broadcast loop stopped")
			return
		}
	}
}

func (b *Broker) tick() {
	if b.Subscribers() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(b.ctx, b.interval)
	defer cancel()

	batch, err := b.store.FetchLatestForAllMappings(ctx, datastore.DefaultLookbackDays)
	if err != nil {
		b.logger.Warn("latest fetch failed, skipping tick", zap.Error(err))
		return
	}
	now := time.Now().UnixMilli()
	if len(batch) > 0 {
		b.broadcast(Event{Name: "latest", Data: LatestPayload{
			Type: "external-latest",
			Data: batch,
			TS:   now,
		}})
	}

	for device, entry := range batch {
		entry := entry
		triggered, err := b.engine.EvaluateDeviceAgainst(ctx, device, &entry)
		if err != nil {
			b.logger.Warn("rule evaluation failed",
				zap.String("device", device),
				zap.Error(err),
			)
			continue
		}
		if len(triggered) == 0 {
			continue
		}
		b.broadcast(Event{Name: "rules", Data: RulesPayload{
			Type:   "rule-trigger",
			Device: device,
			Events: triggered,
			TS:     now,
		}})
		b.notifier.NotifyTriggers(device, triggered)
	}
}
