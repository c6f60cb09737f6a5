package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jcppman/kurasu-manta-sub000/ext"
	"github.com/jcppman/kurasu-manta-sub000/workflow"
)

// Compile-time interface checks.
var (
	_ ext.Extension     = (*Broker)(nil)
	_ ext.RunStarted    = (*Broker)(nil)
	_ ext.RunCompleted  = (*Broker)(nil)
	_ ext.RunFailed     = (*Broker)(nil)
	_ ext.StepStarted   = (*Broker)(nil)
	_ ext.StepProgress  = (*Broker)(nil)
	_ ext.StepCompleted = (*Broker)(nil)
	_ ext.StepFailed    = (*Broker)(nil)
	_ ext.Shutdown      = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// Broker fans run and step lifecycle events out to subscribers via
// topic-based pub/sub. It is registered as an extension, so the runner
// feeds it through the ordinary hook path.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	mu        sync.RWMutex
	subs      map[string]*Subscriber
	published int64

	bufferSize     int
	defaultCredits int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// NewBroker creates a new stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:         NewTopicRegistry(),
		logger:         logger,
		subs:           make(map[string]*Subscriber),
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Topics returns the topic registry for external use.
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize, b.defaultCredits)

	b.mu.Lock()
	b.subs[subscriberID] = sub
	b.mu.Unlock()

	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	sub, ok := b.GetSubscriber(subscriberID)
	if !ok {
		return
	}
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber detaches a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)

	b.mu.Lock()
	sub := b.subs[subscriberID]
	delete(b.subs, subscriberID)
	b.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	sub, ok := b.subs[subscriberID]
	return sub, ok
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
}

// Stats returns broker statistics. TotalPublished counts deliveries, not
// events: one event accepted by three subscribers counts three.
func (b *Broker) Stats() BrokerStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: len(b.subs),
		TotalPublished:  b.published,
	}
}

// publish broadcasts an event to all matching topics.
func (b *Broker) publish(evt *Event) {
	delivered := b.topics.Broadcast(resolveTopics(evt), evt)

	b.mu.Lock()
	b.published += int64(delivered)
	b.mu.Unlock()
}

// emit assembles an event envelope for a run and publishes it.
func (b *Broker) emit(typ EventType, runID string, data RunEventData) {
	raw, err := json.Marshal(data)
	if err != nil {
		// RunEventData only holds strings and ints.
		panic("stream: marshal event data: " + err.Error())
	}
	b.publish(&Event{
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Topic:     RunTopic(runID),
		Data:      raw,
	})
}

func runData(r *workflow.Run) RunEventData {
	return RunEventData{
		RunID:          r.ID.String(),
		Workflow:       r.WorkflowName,
		CompletedSteps: r.CompletedSteps,
		TotalSteps:     r.TotalSteps,
	}
}

// ── Run lifecycle hooks ─────────────────────────────

func (b *Broker) OnRunStarted(_ context.Context, r *workflow.Run) error {
	b.emit(EventRunStarted, r.ID.String(), runData(r))
	return nil
}

func (b *Broker) OnRunCompleted(_ context.Context, r *workflow.Run, elapsed time.Duration) error {
	data := runData(r)
	data.ElapsedMs = elapsed.Milliseconds()
	b.emit(EventRunCompleted, r.ID.String(), data)
	return nil
}

func (b *Broker) OnRunFailed(_ context.Context, r *workflow.Run, runErr error) error {
	data := runData(r)
	data.Error = runErr.Error()
	b.emit(EventRunFailed, r.ID.String(), data)
	return nil
}

// ── Step lifecycle hooks ────────────────────────────

func (b *Broker) OnStepStarted(_ context.Context, r *workflow.Run, stepName string) error {
	data := runData(r)
	data.StepName = stepName
	b.emit(EventStepStarted, r.ID.String(), data)
	return nil
}

func (b *Broker) OnStepProgress(_ context.Context, r *workflow.Run, stepName string, percent int, message string) error {
	data := runData(r)
	data.StepName = stepName
	data.Percent = percent
	data.Message = message
	b.emit(EventStepProgress, r.ID.String(), data)
	return nil
}

func (b *Broker) OnStepCompleted(_ context.Context, r *workflow.Run, stepName string, elapsed time.Duration) error {
	data := runData(r)
	data.StepName = stepName
	data.ElapsedMs = elapsed.Milliseconds()
	b.emit(EventStepCompleted, r.ID.String(), data)
	return nil
}

func (b *Broker) OnStepFailed(_ context.Context, r *workflow.Run, stepName string, stepErr error) error {
	data := runData(r)
	data.StepName = stepName
	data.Error = stepErr.Error()
	b.emit(EventStepFailed, r.ID.String(), data)
	return nil
}

// ── Shutdown ────────────────────────────────────────

func (b *Broker) OnShutdown(_ context.Context) error {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*Subscriber)
	b.mu.Unlock()

	for id := range subs {
		b.topics.UnsubscribeAll(id)
		subs[id].Close()
	}
	b.logger.Info("stream broker shut down")
	return nil
}
