package stream

import (
	"fmt"
	"strings"
	"sync"
)

// Topic names:
//
//	run:<runID>  — events for a specific run
//	runs         — all run and step lifecycle events
//	firehose     — everything
const (
	TopicRuns     = "runs"
	TopicFirehose = "firehose"
)

// RunTopic returns the topic name for a specific run.
func RunTopic(runID string) string { return "run:" + runID }

// TopicRegistry maps topics to their subscribers. It keeps a reverse
// index from subscriber ID to topic set so a departing subscriber can be
// detached from everything in one call. Safe for concurrent use.
type TopicRegistry struct {
	mu         sync.RWMutex
	topics     map[string]map[string]*Subscriber // topic → subscriber ID → subscriber
	membership map[string]map[string]struct{}    // subscriber ID → topic set
}

// NewTopicRegistry creates an empty topic registry.
func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{
		topics:     make(map[string]map[string]*Subscriber),
		membership: make(map[string]map[string]struct{}),
	}
}

// Subscribe adds a subscriber to a topic, creating the topic as needed.
func (tr *TopicRegistry) Subscribe(topic string, sub *Subscriber) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.topics[topic] == nil {
		tr.topics[topic] = make(map[string]*Subscriber)
	}
	tr.topics[topic][sub.ID()] = sub

	if tr.membership[sub.ID()] == nil {
		tr.membership[sub.ID()] = make(map[string]struct{})
	}
	tr.membership[sub.ID()][topic] = struct{}{}
}

// Unsubscribe removes a subscriber from one topic.
func (tr *TopicRegistry) Unsubscribe(topic, subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.detach(topic, subscriberID)
}

// UnsubscribeAll removes a subscriber from every topic it is on.
func (tr *TopicRegistry) UnsubscribeAll(subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	for topic := range tr.membership[subscriberID] {
		tr.detach(topic, subscriberID)
	}
}

// detach removes one (topic, subscriber) edge and prunes empty entries.
// Callers hold tr.mu.
func (tr *TopicRegistry) detach(topic, subscriberID string) {
	if subs := tr.topics[topic]; subs != nil {
		delete(subs, subscriberID)
		if len(subs) == 0 {
			delete(tr.topics, topic)
		}
	}
	if set := tr.membership[subscriberID]; set != nil {
		delete(set, topic)
		if len(set) == 0 {
			delete(tr.membership, subscriberID)
		}
	}
}

// Broadcast sends an event to every subscriber on the listed topics,
// delivering at most once to a subscriber that is on several of them.
// It returns how many subscribers accepted the event.
func (tr *TopicRegistry) Broadcast(topics []string, evt *Event) int {
	tr.mu.RLock()
	targets := make(map[string]*Subscriber)
	for _, topic := range topics {
		for subID, sub := range tr.topics[topic] {
			targets[subID] = sub
		}
	}
	tr.mu.RUnlock()

	delivered := 0
	for _, sub := range targets {
		if sub.send(evt) {
			delivered++
		}
	}
	return delivered
}

// TopicCount returns the number of topics with at least one subscriber.
func (tr *TopicRegistry) TopicCount() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.topics)
}

// SubscriberCount returns the number of subscribers on a topic.
func (tr *TopicRegistry) SubscriberCount(topic string) int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.topics[topic])
}

// resolveTopics returns all topics an event should be published to.
func resolveTopics(evt *Event) []string {
	topics := []string{TopicFirehose, TopicRuns}
	if evt.Topic != "" {
		topics = append(topics, evt.Topic)
	}
	return topics
}

// ParseTopicEntity splits an entity topic like "run:run_abc123" into
// its type and ID. Global topics ("runs", "firehose") yield ("", "").
func ParseTopicEntity(topic string) (entityType, entityID string) {
	before, after, found := strings.Cut(topic, ":")
	if !found {
		return "", ""
	}
	return before, after
}

// ValidateTopic checks whether a topic string names a known channel.
func ValidateTopic(topic string) error {
	if topic == TopicRuns || topic == TopicFirehose {
		return nil
	}
	entityType, entityID := ParseTopicEntity(topic)
	switch {
	case entityType == "" || entityID == "":
		return fmt.Errorf("stream: invalid topic %q", topic)
	case entityType != "run":
		return fmt.Errorf("stream: unknown topic entity type %q", entityType)
	}
	return nil
}
