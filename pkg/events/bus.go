package events

type Handler func(Event)

type Subscription interface {
	Unsubscribe()
}

type TopicStats struct {
	Topic       string `json:"topic"`
	Subscribers int    `json:"subscribers"`
	Delivered   uint64 `json:"delivered"`
}

type Stats struct {
	Topics        []TopicStats `json:"topics"`
	QueueLength   int          `json:"queueLength"`
	QueueCapacity int          `json:"queueCapacity"`
	Published     uint64       `json:"published"`
	Dropped       uint64       `json:"dropped"`
	HandlerPanics uint64       `json:"handlerPanics"`
	DebugTopics   []string     `json:"debugTopics,omitempty"`
}

// Bus delivers events asynchronously. Publish never blocks; when the
// queue is full the event is dropped and counted.
type Bus interface {
	Publish(topic string, event Event)
	// Subscribe registers handler for one topic. An empty topic matches
	// every topic.
	Subscribe(topic string, handler Handler) Subscription
	SubscribeAll(handler Handler) Subscription
	Stats() Stats
	SetDebugTopics(topics []string)
	DebugTopics() []string
	Close() error
}

// Nop discards everything. Services fall back to it when built without a bus.
type Nop struct{}

func (Nop) Publish(string, Event)                  {}
func (Nop) Subscribe(string, Handler) Subscription { return nopSub{} }
func (Nop) SubscribeAll(Handler) Subscription      { return nopSub{} }
func (Nop) Stats() Stats                           { return Stats{} }
func (Nop) SetDebugTopics([]string)                {}
func (Nop) DebugTopics() []string                  { return nil }
func (Nop) Close() error                           { return nil }

type nopSub struct{}

func (nopSub) Unsubscribe() {}
