// Package local implements the in-process event bus.
package local

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/veesix-networks/segmentd/pkg/events"
	"github.com/veesix-networks/segmentd/pkg/logger"
)

const DefaultQueueSize = 4096

type subscriber struct {
	id      uint64
	topic   string
	handler events.Handler
}

type handle struct {
	bus *Bus
	id  uint64
}

func (h handle) Unsubscribe() {
	h.bus.unsubscribe(h.id)
}

// Bus hands events to subscribers from a single dispatch goroutine, so every
// subscriber observes events in publish order. Handlers must not block.
type Bus struct {
	queue   chan events.Event
	quit    chan struct{}
	done    chan struct{}
	closing sync.Once
	closed  atomic.Bool

	mu          sync.RWMutex
	subscribers []*subscriber
	delivered   map[string]uint64
	debug       map[string]bool
	nextID      uint64

	published atomic.Uint64
	dropped   atomic.Uint64
	panics    atomic.Uint64

	logger *slog.Logger
}

func NewBus() *Bus {
	return NewBusWithQueue(DefaultQueueSize)
}

func NewBusWithQueue(size int) *Bus {
	if size <= 0 {
		size = DefaultQueueSize
	}

	b := &Bus{
		queue:     make(chan events.Event, size),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		delivered: make(map[string]uint64),
		logger:    logger.Get(logger.Events),
	}
	go b.run()
	return b
}

// Publish stamps missing envelope fields and queues the event under topic.
func (b *Bus) Publish(topic string, event events.Event) {
	if b.closed.Load() {
		b.dropped.Add(1)
		return
	}

	event.Type = topic
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.queue <- event:
		b.published.Add(1)
	default:
		b.dropped.Add(1)
		b.logger.Warn("Event queue full, dropping event", "topic", topic)
	}
}

func (b *Bus) run() {
	defer close(b.done)
	for {
		select {
		case e := <-b.queue:
			b.dispatch(e)
		case <-b.quit:
			b.drain()
			return
		}
	}
}

func (b *Bus) drain() {
	for {
		select {
		case e := <-b.queue:
			b.dispatch(e)
		default:
			return
		}
	}
}

func (b *Bus) dispatch(e events.Event) {
	b.mu.Lock()
	b.delivered[e.Type]++
	debug := b.debug[e.Type]
	var handlers []events.Handler
	for _, s := range b.subscribers {
		if s.topic == "" || s.topic == e.Type {
			handlers = append(handlers, s.handler)
		}
	}
	b.mu.Unlock()

	if debug {
		b.logger.Info("Event", "topic", e.Type, "id", e.ID, "source", e.Source, "data", e.Data)
	}
	for _, h := range handlers {
		b.call(h, e)
	}
}

func (b *Bus) call(h events.Handler, e events.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.panics.Add(1)
			b.logger.Error("Event handler panicked", "topic", e.Type, "panic", r)
		}
	}()
	h(e)
}

func (b *Bus) Subscribe(topic string, handler events.Handler) events.Subscription {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers = append(b.subscribers, &subscriber{id: id, topic: topic, handler: handler})
	b.mu.Unlock()

	if topic == "" {
		b.logger.Debug("Subscribed to all topics")
	} else {
		b.logger.Debug("Subscribed to topic", "topic", topic)
	}
	return handle{bus: b, id: id}
}

func (b *Bus) SubscribeAll(handler events.Handler) events.Subscription {
	return b.Subscribe("", handler)
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subscribers {
		if s.id == id {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Stats reports one entry per topic that has a subscriber or has seen an
// event. Catch-all subscribers are not attributed to any topic.
func (b *Bus) Stats() events.Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	byTopic := make(map[string]*events.TopicStats)
	entry := func(topic string) *events.TopicStats {
		ts, ok := byTopic[topic]
		if !ok {
			ts = &events.TopicStats{Topic: topic}
			byTopic[topic] = ts
		}
		return ts
	}
	for _, s := range b.subscribers {
		if s.topic != "" {
			entry(s.topic).Subscribers++
		}
	}
	for topic, n := range b.delivered {
		entry(topic).Delivered = n
	}

	topics := make([]events.TopicStats, 0, len(byTopic))
	for _, ts := range byTopic {
		topics = append(topics, *ts)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].Topic < topics[j].Topic })

	return events.Stats{
		Topics:        topics,
		QueueLength:   len(b.queue),
		QueueCapacity: cap(b.queue),
		Published:     b.published.Load(),
		Dropped:       b.dropped.Load(),
		HandlerPanics: b.panics.Load(),
		DebugTopics:   debugList(b.debug),
	}
}

// SetDebugTopics logs every event dispatched on the given topics. An empty
// list turns debug logging off.
func (b *Bus) SetDebugTopics(topics []string) {
	b.mu.Lock()
	if len(topics) == 0 {
		b.debug = nil
	} else {
		b.debug = make(map[string]bool, len(topics))
		for _, t := range topics {
			b.debug[t] = true
		}
	}
	b.mu.Unlock()

	if len(topics) == 0 {
		b.logger.Info("Event debug logging disabled")
		return
	}
	b.logger.Info("Event debug logging enabled", "topics", topics)
}

func (b *Bus) DebugTopics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return debugList(b.debug)
}

// Close dispatches what is already queued, then stops. Events published
// afterwards are dropped.
func (b *Bus) Close() error {
	b.closing.Do(func() {
		b.closed.Store(true)
		close(b.quit)
	})
	<-b.done
	return nil
}

func debugList(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
