package notify

import (
	"context"
	"sync"

	"github.com/efuayankey/aimes-sub001/internal/model"
)

// Feed carries committed request events from the writers to every broker
// listening on it.
type Feed interface {
	Publish(ctx context.Context, ev model.Event) error
	// Listen delivers events until ctx is done.
	Listen(ctx context.Context, deliver func(context.Context, model.Event)) error
}

// LocalFeed delivers events to listeners of the same process.
type LocalFeed struct {
	mu        sync.RWMutex
	listeners map[int]func(context.Context, model.Event)
	next      int
}

func NewLocalFeed() *LocalFeed {
	return &LocalFeed{listeners: make(map[int]func(context.Context, model.Event))}
}

func (f *LocalFeed) Publish(ctx context.Context, ev model.Event) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, deliver := range f.listeners {
		deliver(ctx, ev)
	}
	return nil
}

func (f *LocalFeed) Listen(ctx context.Context, deliver func(context.Context, model.Event)) error {
	f.mu.Lock()
	id := f.next
	f.next++
	f.listeners[id] = deliver
	f.mu.Unlock()

	<-ctx.Done()

	f.mu.Lock()
	delete(f.listeners, id)
	f.mu.Unlock()
	return nil
}
