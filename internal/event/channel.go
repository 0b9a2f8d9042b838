// Package event contains a typed publish/subscribe channel.
//
// Events posted while nobody listens are buffered and handed to the next
// listener that registers. Delivery is ordered per channel: listeners see the
// events in the order they were posted.
package event

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/willie68/go_tilefeed/internal/logging"
)

// Listener receives the events of a channel
type Listener[E any] interface {
	OnEvent(e E)
}

// ListenerFunc adapts a func to a Listener
type ListenerFunc[E any] func(e E)

func (f ListenerFunc[E]) OnEvent(e E) {
	f(e)
}

// Subscription is the handle of a registered listener
type Subscription struct {
	id uint64
}

func (s Subscription) Valid() bool {
	return s.id > 0
}

type registration[E any] struct {
	id     uint64
	l      Listener[E]
	active atomic.Bool
}

type delivery[E any] struct {
	e       E
	targets []*registration[E]
}

// Channel a typed event channel, the zero value is not usable, use NewChannel
type Channel[E any] struct {
	name string
	log  *slog.Logger

	mu          sync.Mutex
	next        uint64
	listeners   []*registration[E]
	onHold      []E
	pending     []delivery[E]
	dispatching bool
}

func NewChannel[E any](name string) *Channel[E] {
	return &Channel[E]{
		name: name,
		log:  logging.New(fmt.Sprintf("event: %s", name)),
	}
}

func (c *Channel[E]) Name() string {
	return c.name
}

// Register adds the listener. If it is the only listener, all events on hold
// are delivered to it first.
func (c *Channel[E]) Register(l Listener[E]) Subscription {
	c.mu.Lock()
	c.next++
	r := &registration[E]{id: c.next, l: l}
	r.active.Store(true)
	c.listeners = append(c.listeners, r)
	if len(c.listeners) == 1 && len(c.onHold) > 0 {
		c.log.Debug("flushing events on hold", "count", len(c.onHold))
		for _, e := range c.onHold {
			c.pending = append(c.pending, delivery[E]{e: e, targets: []*registration[E]{r}})
		}
		c.onHold = nil
		c.drain()
		return Subscription{id: r.id}
	}
	c.mu.Unlock()
	return Subscription{id: r.id}
}

// Unregister removes the listener, it receives no further events. Safe to call
// from within OnEvent.
func (c *Channel[E]) Unregister(s Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(s.id)
}

// Post delivers the event to all listeners registered at this moment. Without
// listeners the event is put on hold.
func (c *Channel[E]) Post(e E) {
	c.mu.Lock()
	if len(c.listeners) == 0 {
		c.onHold = append(c.onHold, e)
		c.mu.Unlock()
		return
	}
	targets := make([]*registration[E], len(c.listeners))
	copy(targets, c.listeners)
	c.pending = append(c.pending, delivery[E]{e: e, targets: targets})
	c.drain()
}

// Len number of registered listeners
func (c *Channel[E]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

// Pending number of events on hold
func (c *Channel[E]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.onHold)
}

// drain must be called with the lock held, it releases the lock. Only one
// goroutine delivers at a time, others just queue their deliveries.
func (c *Channel[E]) drain() {
	if c.dispatching {
		c.mu.Unlock()
		return
	}
	c.dispatching = true
	for len(c.pending) > 0 {
		d := c.pending[0]
		c.pending[0] = delivery[E]{}
		c.pending = c.pending[1:]
		c.mu.Unlock()
		for _, r := range d.targets {
			if r.active.Load() {
				c.deliver(r, d.e)
			}
		}
		c.mu.Lock()
	}
	c.pending = nil
	c.dispatching = false
	c.mu.Unlock()
}

func (c *Channel[E]) deliver(r *registration[E], e E) {
	defer func() {
		if p := recover(); p != nil {
			c.log.Error("listener panicked, removing it", "listener", r.id, "panic", fmt.Sprint(p))
			c.mu.Lock()
			c.remove(r.id)
			c.mu.Unlock()
		}
	}()
	r.l.OnEvent(e)
}

func (c *Channel[E]) remove(id uint64) {
	for i, r := range c.listeners {
		if r.id == id {
			r.active.Store(false)
			c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
			return
		}
	}
}
