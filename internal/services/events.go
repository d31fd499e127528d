package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"jukwaa/internal/metrics"
	"jukwaa/internal/models"
)

type EventType string

const (
	EventPostCreated       EventType = "post.created"
	EventPostEdited        EventType = "post.edited"
	EventPostDeleted       EventType = "post.deleted"
	EventCommentCreated    EventType = "comment.created"
	EventCommentEdited     EventType = "comment.edited"
	EventCommentDeleted    EventType = "comment.deleted"
	EventVoteChanged       EventType = "vote.changed"
	EventPollVoted         EventType = "poll.voted"
	EventReportFiled       EventType = "report.filed"
	EventModerationDecided EventType = "moderation.decided"
	EventAccountSuspended  EventType = "account.suspended"
	EventAccountActivated  EventType = "account.activated"
)

// Event is what external collaborators receive after a transition commits.
type Event struct {
	Type        EventType          `json:"type"`
	ContentKind models.ContentKind `json:"content_kind,omitempty"`
	ContentID   string             `json:"content_id"`
	ActorID     string             `json:"actor_id"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

// EventSink is an external collaborator. Deliver must respect ctx.
type EventSink interface {
	Name() string
	Deliver(ctx context.Context, event Event) error
}

// Publisher accepts events without blocking the caller.
type Publisher interface {
	Publish(events ...Event)
}

type discardPublisher struct{}

func (discardPublisher) Publish(...Event) {}

// Dispatcher fans committed events out to sinks from a bounded queue.
// Publish never blocks: when the queue is full the event is dropped.
type Dispatcher struct {
	queue   chan Event
	sinks   []EventSink
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(sinks []EventSink, queueSize int, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1000
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Dispatcher{
		queue:   make(chan Event, queueSize), // 缓冲队列，防止阻塞
		sinks:   sinks,
		timeout: timeout,
		logger:  ResolveLogger(logger),
		done:    make(chan struct{}),
	}
}

// Start launches the delivery worker.
func (d *Dispatcher) Start() {
	go d.worker()
}

func (d *Dispatcher) Publish(events ...Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	for _, ev := range events {
		if ev.OccurredAt.IsZero() {
			ev.OccurredAt = time.Now()
		}
		select {
		case d.queue <- ev:
		default:
			metrics.EventsDroppedTotal.WithLabelValues(string(ev.Type)).Inc()
			d.logger.Warn("event queue full, dropping event",
				"event", "dispatcher_queue_full",
				"module", "services/events",
				"type", ev.Type,
				"content_id", ev.ContentID,
			)
		}
	}
}

// Close stops accepting events and waits for the queue to drain or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer close(d.done)
	for ev := range d.queue {
		for _, sink := range d.sinks {
			d.deliver(sink, ev)
		}
	}
}

func (d *Dispatcher) deliver(sink EventSink, ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	started := time.Now()
	err := sink.Deliver(ctx, ev)
	metrics.EventDeliveryDuration.WithLabelValues(sink.Name()).Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.EventsDispatchedTotal.WithLabelValues(sink.Name(), "error").Inc()
		d.logger.Error("event delivery failed",
			"event", "dispatcher_delivery_failed",
			"module", "services/events",
			"sink", sink.Name(),
			"type", ev.Type,
			"content_id", ev.ContentID,
			"error", err.Error(),
		)
		return
	}
	metrics.EventsDispatchedTotal.WithLabelValues(sink.Name(), "ok").Inc()
}
