package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jcppman/kurasu-manta-sub000/id"
	"github.com/jcppman/kurasu-manta-sub000/workflow"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRun() *workflow.Run {
	return &workflow.Run{
		ID:           id.NewRunID(),
		WorkflowName: "ingest",
		TotalSteps:   3,
	}
}

func TestBrokerSubscribeAndPublish(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	sub := b.Subscribe("sub-1", TopicRuns)

	evt := &Event{
		Type:      EventRunStarted,
		Timestamp: time.Now().UTC(),
		Topic:     RunTopic("run-123"),
		Data:      json.RawMessage(`{"run_id":"run-123"}`),
	}
	b.publish(evt)

	// Event should arrive on the subscriber channel.
	select {
	case received := <-sub.C():
		if received.Type != EventRunStarted {
			t.Errorf("Type = %q, want %q", received.Type, EventRunStarted)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBrokerMultipleTopics(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	// Subscribe to firehose — should get everything.
	firehose := b.Subscribe("firehose-sub", TopicFirehose)

	// Subscribe to just runs.
	runsSub := b.Subscribe("runs-sub", TopicRuns)

	evt := &Event{
		Type:      EventRunCompleted,
		Timestamp: time.Now().UTC(),
		Topic:     RunTopic("run-456"),
		Data:      json.RawMessage(`{}`),
	}
	b.publish(evt)

	// Both should receive the event.
	for _, sub := range []*Subscriber{firehose, runsSub} {
		select {
		case <-sub.C():
			// ok
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s timed out", sub.ID())
		}
	}
}

func TestBrokerRunTopics(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	// Subscribe to one specific run.
	sub := b.Subscribe("run-sub", RunTopic("run-abc"))

	evt := &Event{
		Type:      EventStepCompleted,
		Timestamp: time.Now().UTC(),
		Topic:     RunTopic("run-abc"),
		Data:      json.RawMessage(`{"step_name":"load"}`),
	}
	b.publish(evt)

	select {
	case received := <-sub.C():
		if received.Type != EventStepCompleted {
			t.Errorf("Type = %q, want %q", received.Type, EventStepCompleted)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for run event")
	}

	// Publish event for a different run — should NOT arrive.
	evt2 := &Event{
		Type:      EventRunStarted,
		Timestamp: time.Now().UTC(),
		Topic:     RunTopic("run-other"),
		Data:      json.RawMessage(`{}`),
	}
	b.publish(evt2)

	select {
	case <-sub.C():
		t.Fatal("should not receive event for different run")
	case <-time.After(50 * time.Millisecond):
		// ok — no event
	}
}

func TestBrokerHooksPublish(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())
	run := testRun()
	sub := b.Subscribe("hook-sub", RunTopic(run.ID.String()))

	ctx := context.Background()
	hooks := []struct {
		want EventType
		fire func() error
	}{
		{EventRunStarted, func() error { return b.OnRunStarted(ctx, run) }},
		{EventStepStarted, func() error { return b.OnStepStarted(ctx, run, "init") }},
		{EventStepProgress, func() error { return b.OnStepProgress(ctx, run, "init", 40, "loading") }},
		{EventStepCompleted, func() error { return b.OnStepCompleted(ctx, run, "init", time.Second) }},
		{EventStepFailed, func() error { return b.OnStepFailed(ctx, run, "load", errors.New("boom")) }},
		{EventRunFailed, func() error { return b.OnRunFailed(ctx, run, errors.New("boom")) }},
		{EventRunCompleted, func() error { return b.OnRunCompleted(ctx, run, 2*time.Second) }},
	}

	for _, h := range hooks {
		if err := h.fire(); err != nil {
			t.Fatalf("%s hook: %v", h.want, err)
		}
		select {
		case received := <-sub.C():
			if received.Type != h.want {
				t.Fatalf("Type = %q, want %q", received.Type, h.want)
			}
			var data RunEventData
			if err := json.Unmarshal(received.Data, &data); err != nil {
				t.Fatalf("decode %s payload: %v", h.want, err)
			}
			if data.RunID != run.ID.String() || data.Workflow != "ingest" {
				t.Fatalf("%s payload: %+v", h.want, data)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", h.want)
		}
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	sub := b.Subscribe("sub-rm", TopicFirehose)

	b.RemoveSubscriber("sub-rm")

	evt := &Event{
		Type:      EventRunStarted,
		Timestamp: time.Now().UTC(),
		Topic:     RunTopic("r1"),
		Data:      json.RawMessage(`{}`),
	}
	b.publish(evt)

	// Channel should be closed.
	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatal("channel should be closed after RemoveSubscriber")
		}
	case <-time.After(100 * time.Millisecond):
		// ok
	}
}

func TestBrokerShutdownClosesSubscribers(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())
	sub := b.Subscribe("s1", TopicRuns)

	if err := b.OnShutdown(context.Background()); err != nil {
		t.Fatalf("OnShutdown: %v", err)
	}

	if _, ok := <-sub.C(); ok {
		t.Fatal("subscriber channel should be closed after shutdown")
	}
	if got := b.Stats().SubscriberCount; got != 0 {
		t.Fatalf("SubscriberCount = %d after shutdown, want 0", got)
	}
}

func TestBrokerStats(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	_ = b.Subscribe("s1", TopicRuns)
	_ = b.Subscribe("s2", TopicRuns, TopicFirehose)

	stats := b.Stats()
	if stats.SubscriberCount != 2 {
		t.Errorf("SubscriberCount = %d, want 2", stats.SubscriberCount)
	}
	if stats.TopicCount != 2 {
		t.Errorf("TopicCount = %d, want 2", stats.TopicCount)
	}
}

func TestSubscriberCredits(t *testing.T) {
	t.Parallel()

	sub := NewSubscriber("credit-sub", 10, 2)

	evt := &Event{Type: EventRunStarted, Timestamp: time.Now().UTC(), Data: json.RawMessage(`{}`)}

	// Should accept 2 events (initial credits).
	if !sub.send(evt) {
		t.Fatal("first send should succeed")
	}
	if !sub.send(evt) {
		t.Fatal("second send should succeed")
	}

	// Third should fail — no credits.
	if sub.send(evt) {
		t.Fatal("third send should fail (no credits)")
	}

	// Replenish credits.
	sub.AddCredits(5)
	if sub.Credits() != 5 {
		t.Errorf("Credits = %d, want 5", sub.Credits())
	}

	if !sub.send(evt) {
		t.Fatal("send after credit replenishment should succeed")
	}
}

func TestSubscriberFullBufferDrops(t *testing.T) {
	t.Parallel()

	sub := NewSubscriber("tiny-sub", 1, 100)
	evt := &Event{Type: EventRunStarted, Timestamp: time.Now().UTC(), Data: json.RawMessage(`{}`)}

	if !sub.send(evt) {
		t.Fatal("first send should succeed")
	}
	// Buffer of 1 is now full; the drop must restore the spent credit.
	if sub.send(evt) {
		t.Fatal("send into a full buffer should drop")
	}
	if got := sub.Credits(); got != 99 {
		t.Errorf("Credits = %d, want 99", got)
	}
}

func TestTopicValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		topic string
		valid bool
	}{
		{TopicRuns, true},
		{TopicFirehose, true},
		{"run:run-123", true},
		{"invalid", false},
		{"unknown:entity", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			err := ValidateTopic(tt.topic)
			if tt.valid && err != nil {
				t.Errorf("ValidateTopic(%q) returned error: %v", tt.topic, err)
			}
			if !tt.valid && err == nil {
				t.Errorf("ValidateTopic(%q) should return error", tt.topic)
			}
		})
	}
}

func TestTopicRegistry(t *testing.T) {
	t.Parallel()

	tr := NewTopicRegistry()

	sub1 := NewSubscriber("s1", 10, 100)
	sub2 := NewSubscriber("s2", 10, 100)

	tr.Subscribe("topic-a", sub1)
	tr.Subscribe("topic-a", sub2)
	tr.Subscribe("topic-b", sub1)

	if tr.TopicCount() != 2 {
		t.Errorf("TopicCount = %d, want 2", tr.TopicCount())
	}
	if tr.SubscriberCount("topic-a") != 2 {
		t.Errorf("SubscriberCount(topic-a) = %d, want 2", tr.SubscriberCount("topic-a"))
	}

	// Unsubscribe s2 from topic-a.
	tr.Unsubscribe("topic-a", "s2")
	if tr.SubscriberCount("topic-a") != 1 {
		t.Errorf("SubscriberCount(topic-a) = %d, want 1", tr.SubscriberCount("topic-a"))
	}

	// UnsubscribeAll for s1.
	tr.UnsubscribeAll("s1")
	if tr.TopicCount() != 0 {
		t.Errorf("TopicCount after UnsubscribeAll = %d, want 0", tr.TopicCount())
	}
}

func TestBroadcastDeduplication(t *testing.T) {
	t.Parallel()

	tr := NewTopicRegistry()
	sub := NewSubscriber("dedup-sub", 10, 100)

	// Subscribe to multiple topics.
	tr.Subscribe("topic-x", sub)
	tr.Subscribe("topic-y", sub)

	evt := &Event{Type: EventRunStarted, Timestamp: time.Now().UTC(), Data: json.RawMessage(`{}`)}

	delivered := tr.Broadcast([]string{"topic-x", "topic-y"}, evt)
	if delivered != 1 {
		t.Errorf("Broadcast delivered to %d subscribers, want 1 (deduplicated)", delivered)
	}
}

func TestResolveTopics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		evt      *Event
		expected []string
	}{
		{
			evt:      &Event{Type: EventRunStarted, Topic: "run:r1"},
			expected: []string{TopicFirehose, TopicRuns, "run:r1"},
		},
		{
			evt:      &Event{Type: EventStepProgress, Topic: ""},
			expected: []string{TopicFirehose, TopicRuns},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.evt.Type), func(t *testing.T) {
			topics := resolveTopics(tt.evt)
			if len(topics) != len(tt.expected) {
				t.Errorf("got %d topics, want %d: %v", len(topics), len(tt.expected), topics)
				return
			}
			for i, topic := range topics {
				if topic != tt.expected[i] {
					t.Errorf("topic[%d] = %q, want %q", i, topic, tt.expected[i])
				}
			}
		})
	}
}
