// Package eventbus implements the named-topic pub/sub backbone of the data
// plane. Delivery is synchronous and registration-ordered within a topic;
// a failing handler never prevents the remaining handlers from running.
package eventbus

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veselinppetkov/orders-app-sub000/internal/cdperr"
)

// Payload is the value delivered to handlers. Listener context blobs are
// merged into it before delivery.
type Payload map[string]any

// Handler consumes one emission. A returned error (or panic) is counted
// against the listener but does not stop the emission.
type Handler func(p Payload) error

var topicPattern = regexp.MustCompile(`^[A-Za-z0-9:_-]{1,100}$`)

// slowEmitThreshold is the wall time past which an emission is logged as slow.
const slowEmitThreshold = 50 * time.Millisecond

type listener struct {
	id         string
	handler    Handler
	filter     func(Payload) bool
	context    Payload
	once       bool
	registered time.Time
	callCount  int
	errorCount int
}

// ListenerInfo is the introspection view of a registered listener.
type ListenerInfo struct {
	ID         string
	Registered time.Time
	CallCount  int
	ErrorCount int
}

// Stats aggregates emission counters for the whole bus.
type Stats struct {
	Emissions     int
	HandlerCalls  int
	HandlerErrors int
	SlowEmissions int
	Topics        int
	Listeners     int
}

// Option configures a single listener registration.
type Option func(*listener)

// WithFilter delivers only payloads for which fn returns true.
func WithFilter(fn func(Payload) bool) Option {
	return func(l *listener) { l.filter = fn }
}

// WithContext merges ctx into every payload delivered to this listener.
// Payload keys win over context keys on collision.
func WithContext(ctx Payload) Option {
	return func(l *listener) { l.context = ctx }
}

// Bus is a named-topic synchronous event bus.
type Bus struct {
	mu        sync.Mutex
	topics    map[string][]*listener
	destroyed bool
	stats     Stats
	created   time.Time
	log       *zap.Logger
}

// New returns an open bus.
func New(log *zap.Logger) *Bus {
	return &Bus{
		topics:  make(map[string][]*listener),
		created: time.Now(),
		log:     log.Named("eventbus"),
	}
}

// On registers handler for topic and returns an unsubscribe function.
// Registration on a destroyed bus or with a malformed topic is a logged no-op.
func (b *Bus) On(topic string, handler Handler, opts ...Option) func() {
	if handler == nil || !topicPattern.MatchString(topic) {
		b.log.Warn("rejected listener registration", zap.String("topic", topic))
		return func() {}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		b.log.Warn("On called on destroyed bus",
			zap.String("topic", topic), zap.Error(cdperr.ErrBusClosed))
		return func() {}
	}

	l := &listener{
		id:         uuid.NewString(),
		handler:    handler,
		registered: time.Now(),
	}
	for _, opt := range opts {
		opt(l)
	}
	b.topics[topic] = append(b.topics[topic], l)

	id := l.id
	return func() { b.Off(topic, id) }
}

// Once registers a handler that is removed after its first delivery.
func (b *Bus) Once(topic string, handler Handler, opts ...Option) func() {
	unsubscribe := b.On(topic, handler, opts...)
	b.mu.Lock()
	if ls := b.topics[topic]; len(ls) > 0 {
		ls[len(ls)-1].once = true
	}
	b.mu.Unlock()
	return unsubscribe
}

// Off removes the listener with the given id from topic.
func (b *Bus) Off(topic, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ls := b.topics[topic]
	for i, l := range ls {
		if l.id == id {
			b.topics[topic] = append(ls[:i:i], ls[i+1:]...)
			break
		}
	}
	if len(b.topics[topic]) == 0 {
		delete(b.topics, topic)
	}
}

// Emit delivers payload to every listener of topic in registration order.
// It returns true iff every handler ran without error or panic. Emitting on
// a destroyed bus or an invalid topic is a logged no-op returning false.
func (b *Bus) Emit(topic string, payload Payload) bool {
	if !topicPattern.MatchString(topic) {
		b.log.Warn("emit with invalid topic", zap.String("topic", topic))
		return false
	}

	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		b.log.Warn("Emit called on destroyed bus",
			zap.String("topic", topic), zap.Error(cdperr.ErrBusClosed))
		return false
	}
	b.stats.Emissions++
	snapshot := make([]*listener, len(b.topics[topic]))
	copy(snapshot, b.topics[topic])
	b.mu.Unlock()

	start := time.Now()
	ok := true
	for _, l := range snapshot {
		delivered := payload
		if l.context != nil {
			delivered = make(Payload, len(l.context)+len(payload))
			for k, v := range l.context {
				delivered[k] = v
			}
			for k, v := range payload {
				delivered[k] = v
			}
		}
		if l.filter != nil && !l.filter(delivered) {
			continue
		}

		err := b.call(l, delivered)

		b.mu.Lock()
		l.callCount++
		b.stats.HandlerCalls++
		if err != nil {
			l.errorCount++
			b.stats.HandlerErrors++
			ok = false
		}
		b.mu.Unlock()

		if err != nil {
			b.log.Error("listener failed",
				zap.String("topic", topic),
				zap.String("listener", l.id),
				zap.Error(err))
		}
		if l.once {
			b.Off(topic, l.id)
		}
	}

	if elapsed := time.Since(start); elapsed > slowEmitThreshold {
		b.mu.Lock()
		b.stats.SlowEmissions++
		b.mu.Unlock()
		b.log.Warn("slow emission",
			zap.String("topic", topic),
			zap.Duration("elapsed", elapsed),
			zap.Int("listeners", len(snapshot)))
	}
	return ok
}

// call runs a single handler, converting panics into errors so one bad
// listener cannot take down the emission.
func (b *Bus) call(l *listener, p Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return l.handler(p)
}

// EmitAsync delivers payload after delay on a separate goroutine.
func (b *Bus) EmitAsync(topic string, payload Payload, delay time.Duration) {
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		b.Emit(topic, payload)
	}()
}

// Listeners returns introspection records for topic.
func (b *Bus) Listeners(topic string) []ListenerInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ListenerInfo, 0, len(b.topics[topic]))
	for _, l := range b.topics[topic] {
		out = append(out, ListenerInfo{
			ID:         l.id,
			Registered: l.registered,
			CallCount:  l.callCount,
			ErrorCount: l.errorCount,
		})
	}
	return out
}

// EventNames returns the sorted list of topics with at least one listener.
func (b *Bus) EventNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.topics))
	for t := range b.topics {
		names = append(names, t)
	}
	sort.Strings(names)
	return names
}

// ListenerCount returns the number of listeners registered for topic.
func (b *Bus) ListenerCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

// Stats returns a copy of the bus counters.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.Topics = len(b.topics)
	for _, ls := range b.topics {
		s.Listeners += len(ls)
	}
	return s
}

// Uptime reports how long the bus has existed.
func (b *Bus) Uptime() time.Duration {
	return time.Since(b.created)
}

// Destroy removes every listener and closes the bus. Subsequent On/Emit
// calls are logged no-ops.
func (b *Bus) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return
	}
	b.destroyed = true
	b.topics = make(map[string][]*listener)
	b.log.Info("bus destroyed", zap.Int("emissions", b.stats.Emissions))
}
