package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/SAP-F-2025/quiz-service/internal/events"
)

const (
	defaultEmitterBuffer  = 256
	defaultPublishTimeout = 5 * time.Second
)

// analyticsEmitter hands events to a single background publisher. Emit
// never blocks and never reports failure to its caller.
type analyticsEmitter struct {
	publisher events.EventPublisher
	clock     Clock
	logger    *slog.Logger
	timeout   time.Duration

	queue chan *events.AnalyticsEvent
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewAnalyticsEmitter(publisher events.EventPublisher, clock Clock, logger *slog.Logger, cfg EmitterConfig) AnalyticsEmitter {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultEmitterBuffer
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}

	e := &analyticsEmitter{
		publisher: publisher,
		clock:     clock,
		logger:    logger,
		timeout:   cfg.PublishTimeout,
		queue:     make(chan *events.AnalyticsEvent, cfg.BufferSize),
		done:      make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *analyticsEmitter) Emit(eventType events.EventType, payload interface{}) {
	event := events.NewAnalyticsEvent(eventType, payload, e.clock.Now())

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.logger.Debug("Analytics emitter closed, dropping event", "event_type", eventType)
		return
	}

	select {
	case e.queue <- event:
	default:
		e.logger.Warn("Analytics buffer full, dropping event",
			"event_type", eventType,
			"event_id", event.ID)
	}
}

func (e *analyticsEmitter) run() {
	defer close(e.done)
	for event := range e.queue {
		e.publish(event)
	}
}

func (e *analyticsEmitter) publish(event *events.AnalyticsEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	if err := e.publisher.PublishAnalyticsEvent(ctx, event); err != nil {
		e.logger.Error("Failed to publish analytics event",
			"event_type", event.Type,
			"event_id", event.ID,
			"error", err)
	}
}

func (e *analyticsEmitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
