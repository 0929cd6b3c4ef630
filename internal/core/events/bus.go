package events

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

var ErrNilHandler = errors.New("nil event handler")

var _ Bus = (*inMemoryBus)(nil)

type subscription struct {
	id     string
	typ    Type
	active atomic.Bool
	cancel func()
}

func (s *subscription) ID() string     { return s.id }
func (s *subscription) Type() Type     { return s.typ }
func (s *subscription) IsActive() bool { return s.active.Load() }
func (s *subscription) Cancel() error {
	if s.active.CompareAndSwap(true, false) && s.cancel != nil {
		s.cancel()
	}
	return nil
}

type handlerEntry struct {
	sub     *subscription
	handler Handler
}

// inMemoryBus keeps handlers per event type, in subscription order.
type inMemoryBus struct {
	mu       sync.RWMutex
	handlers map[Type][]handlerEntry

	published atomic.Uint64
	delivered atomic.Uint64
	failures  atomic.Uint64
}

// NewBus creates an empty Bus.
func NewBus() Bus {
	return &inMemoryBus{handlers: make(map[Type][]handlerEntry)}
}

func (b *inMemoryBus) Publish(event Event) error {
	b.mu.RLock()
	entries := append([]handlerEntry(nil), b.handlers[event.Type]...)
	b.mu.RUnlock()

	b.published.Add(1)

	var all error
	for _, e := range entries {
		if !e.sub.IsActive() {
			continue
		}
		b.delivered.Add(1)
		if err := b.call(e.handler, event); err != nil {
			all = errors.Join(all, err)
		}
	}
	if all != nil {
		b.failures.Add(1)
	}
	return all
}

func (b *inMemoryBus) call(h Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler for %s panicked: %v", event.Type, r)
		}
	}()
	return h(event)
}

func (b *inMemoryBus) PublishAsync(event Event) <-chan error {
	ch := make(chan error, 1)
	go func() {
		ch <- b.Publish(event)
		close(ch)
	}()
	return ch
}

func (b *inMemoryBus) Subscribe(typ Type, handler Handler) (Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}

	s := &subscription{id: uuid.NewString(), typ: typ}
	s.active.Store(true)
	s.cancel = func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		entries := b.handlers[typ]
		for i, e := range entries {
			if e.sub == s {
				b.handlers[typ] = append(entries[:i:i], entries[i+1:]...)
				break
			}
		}
		if len(b.handlers[typ]) == 0 {
			delete(b.handlers, typ)
		}
	}

	b.mu.Lock()
	b.handlers[typ] = append(b.handlers[typ], handlerEntry{sub: s, handler: handler})
	b.mu.Unlock()
	return s, nil
}

func (b *inMemoryBus) Unsubscribe(sub Subscription) error {
	if sub == nil {
		return nil
	}
	return sub.Cancel()
}

func (b *inMemoryBus) Metrics() Metrics {
	b.mu.RLock()
	var subs uint64
	for _, entries := range b.handlers {
		subs += uint64(len(entries))
	}
	b.mu.RUnlock()

	return Metrics{
		Published:         b.published.Load(),
		DeliveredHandlers: b.delivered.Load(),
		Errors:            b.failures.Load(),
		Subscribers:       subs,
	}
}
