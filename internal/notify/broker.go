// Package notify pushes request state changes to subscribers. Delivery is
// at least once; per-request versions keep a subscriber from ever seeing a
// request go back to an older state.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/efuayankey/aimes-sub001/internal/model"
)

// ErrLagged closes a subscription whose buffer overflowed. The subscriber
// should subscribe again and will get a fresh snapshot.
var ErrLagged = errors.New("subscriber fell behind the event stream")

// ActiveLister returns the pending and claimed requests.
type ActiveLister func(ctx context.Context) ([]model.Request, error)

// Broker fans request events out to subscriptions. Conversation events are
// ignored.
type Broker struct {
	feed   Feed
	active ActiveLister
	buffer int
	log    *slog.Logger

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func NewBroker(feed Feed, active ActiveLister, buffer int, log *slog.Logger) *Broker {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broker{
		feed:   feed,
		active: active,
		buffer: buffer,
		log:    log.With("component", "notify"),
		subs:   make(map[*Subscription]struct{}),
	}
}

// Publish forwards a committed event to the feed. Failures are logged: the
// transition is already durable.
func (b *Broker) Publish(ctx context.Context, ev model.Event) {
	FeedSink{Feed: b.feed, Log: b.log}.Publish(ctx, ev)
}

// Run consumes the feed until ctx is done.
func (b *Broker) Run(ctx context.Context) error {
	return b.feed.Listen(ctx, b.dispatch)
}

func (b *Broker) dispatch(_ context.Context, ev model.Event) {
	if ev.Request == nil {
		return
	}
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if !s.offer(ev) {
			b.remove(s)
			b.log.Warn("subscriber lagged, closing", "buffer", b.buffer)
		}
	}
}

// Subscribe registers a subscription. It first receives a snapshot event for
// every active request matching filter, then live events. The subscription
// ends when ctx is done.
func (b *Broker) Subscribe(ctx context.Context, filter string) (*Subscription, error) {
	f, err := CompileFilter(filter)
	if err != nil {
		return nil, err
	}
	s := &Subscription{
		filter:  f,
		seen:    make(map[string]int64),
		visible: make(map[string]bool),
		limit:   b.buffer,
		done:    make(chan struct{}),
	}

	// Register before loading the snapshot so nothing committed in between
	// is missed; live events are held until the snapshot is queued.
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	active, err := b.active(ctx)
	if err != nil {
		b.remove(s)
		return nil, err
	}
	s.start(active, b.buffer)

	go func() {
		select {
		case <-ctx.Done():
			b.remove(s)
			s.close(ctx.Err())
		case <-s.done:
		}
	}()
	return s, nil
}

func (b *Broker) remove(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// Subscribers returns the number of open subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Subscription is one subscriber's view of the event stream.
type Subscription struct {
	filter Filter
	limit  int
	done   chan struct{}

	mu      sync.Mutex
	ch      chan model.Event
	held    []model.Event
	seen    map[string]int64
	visible map[string]bool
	err     error
	closed  bool
}

// Events is closed when the subscription ends; Err then tells why.
func (s *Subscription) Events() <-chan model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) start(active []model.Request, buffer int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch = make(chan model.Event, len(active)+len(s.held)+buffer)
	for i := range active {
		s.pushLocked(model.RequestEvent(model.EventRequestSnapshot, &active[i], active[i].UpdatedAt))
	}
	for _, ev := range s.held {
		s.pushLocked(ev)
	}
	s.held = nil
}

// offer queues ev if the subscriber should see it. It reports false when the
// subscription had to be closed for lagging.
func (s *Subscription) offer(ev model.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	if s.ch == nil {
		if len(s.held) >= s.limit {
			s.closeLocked(ErrLagged)
			return false
		}
		s.held = append(s.held, ev)
		return true
	}
	if !s.pushLocked(ev) {
		s.closeLocked(ErrLagged)
		return false
	}
	return true
}

// pushLocked applies version ordering and the filter. A request that stops
// matching is delivered once more, so the subscriber learns it left the view.
func (s *Subscription) pushLocked(ev model.Event) bool {
	id := ev.RequestID
	if last, ok := s.seen[id]; ok && ev.Version <= last {
		return true
	}
	match := s.filter.Match(ev)
	if !match && !s.visible[id] {
		s.seen[id] = ev.Version
		return true
	}
	select {
	case s.ch <- ev:
	default:
		return false
	}
	s.seen[id] = ev.Version
	if match {
		s.visible[id] = true
	} else {
		delete(s.visible, id)
	}
	return true
}

func (s *Subscription) close(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(err)
}

func (s *Subscription) closeLocked(err error) {
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	if s.ch == nil {
		s.ch = make(chan model.Event)
	}
	close(s.ch)
	close(s.done)
}
