package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a notable occurrence during a build or watch session.
type Event struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	BuildID   string                 `json:"build_id,omitempty"`
	Entry     string                 `json:"entry,omitempty"`
	Message   string                 `json:"message"`
	Level     string                 `json:"level"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeBuildStarted    = "build.started"
	EventTypeBuildSucceeded  = "build.succeeded"
	EventTypeBuildFailed     = "build.failed"
	EventTypeWatchRebuild    = "watch.rebuild"
	EventTypePolicyViolation = "policy.violation"
)

// Event levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber handles a delivered event.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher fans events out to subscribers. In synchronous mode Publish
// returns after every subscriber has run; in async mode a background goroutine
// drains a bounded queue.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) *EventPublisher {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}
	}

	ctx, cancel := context.WithCancel(context.Background())
	ep := &EventPublisher{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}
	if cfg.EnableAsync {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}
	return ep
}

// Publish delivers an event to all matching subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishBuildStarted publishes a build.started event.
func (ep *EventPublisher) PublishBuildStarted(buildID, entry string) error {
	return ep.Publish(Event{
		Type:    EventTypeBuildStarted,
		Source:  "engine",
		BuildID: buildID,
		Entry:   entry,
		Message: fmt.Sprintf("Build %s of %s started", buildID, entry),
		Level:   EventLevelInfo,
	})
}

// PublishBuildSucceeded publishes a build.succeeded event.
func (ep *EventPublisher) PublishBuildSucceeded(buildID, entry string, deps int, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeBuildSucceeded,
		Source:  "engine",
		BuildID: buildID,
		Entry:   entry,
		Message: fmt.Sprintf("Build %s of %s succeeded", buildID, entry),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"dependencies": deps,
			"duration":     duration.Seconds(),
		},
	})
}

// PublishBuildFailed publishes a build.failed event.
func (ep *EventPublisher) PublishBuildFailed(buildID, entry, stage string, err error) error {
	return ep.Publish(Event{
		Type:    EventTypeBuildFailed,
		Source:  "engine",
		BuildID: buildID,
		Entry:   entry,
		Message: fmt.Sprintf("Build %s of %s failed at %s: %v", buildID, entry, stage, err),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"stage": stage,
		},
	})
}

// PublishPolicyViolation publishes one event per denial message.
func (ep *EventPublisher) PublishPolicyViolation(buildID, entry, policy, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypePolicyViolation,
		Source:  "policy",
		BuildID: buildID,
		Entry:   entry,
		Message: fmt.Sprintf("Policy %s denied %s: %s", policy, entry, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"policy": policy,
			"reason": reason,
		},
	})
}

// PublishWatchRebuild publishes a watch.rebuild event.
func (ep *EventPublisher) PublishWatchRebuild(entry string, changed []string) error {
	return ep.Publish(Event{
		Type:    EventTypeWatchRebuild,
		Source:  "watch",
		Entry:   entry,
		Message: fmt.Sprintf("Rebuilding %s after %d changed file(s)", entry, len(changed)),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"changed": changed,
		},
	})
}

// Subscribe adds a subscriber. A nil filter receives every event.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.filters = append(ep.filters, filter)
}

func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()
	for {
		select {
		case event := <-ep.buffer:
			ep.deliverEvent(event)
		case <-ep.ctx.Done():
			for {
				select {
				case event := <-ep.buffer:
					ep.deliverEvent(event)
				default:
					return
				}
			}
		}
	}
}

func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown drains queued events and stops the publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}
	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByType creates a filter that only allows the given event types.
func FilterByType(types ...string) EventFilter {
	allowed := make(map[string]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}
	return func(event Event) bool {
		return allowed[event.Type]
	}
}

// FilterByLevel creates a filter that only allows events of a level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}
	threshold := levels[minLevel]
	return func(event Event) bool {
		return levels[event.Level] >= threshold
	}
}
