/*
Package events carries feed invalidation notices from mutations to the feeds they affect.

A publisher announces that the feed identified by a Key is stale; every subscriber for
that key discards its cached state. Invalidation is all-or-nothing at feed granularity.
*/
package events

import (
	"sync"

	"github.com/rs/zerolog"

	"streamify/internal/pkg/logx"
)

// Key identifies a cached feed.
type Key string

const (
	// IncomingRequests is the feed of pending requests received by the local user.
	IncomingRequests Key = "incoming:friend:request"

	// OutgoingRequests is the feed of pending requests sent by the local user.
	OutgoingRequests Key = "outgoing:friend:request"

	// Friends is the list of accepted friends.
	Friends Key = "my:friends"

	// Recommended is the list of users suggested as new friends.
	Recommended Key = "recommended:users"
)

// Handler is invoked with the key that was invalidated.
type Handler func(Key)

// Subscriber is the read side of the bus handed to feeds.
type Subscriber interface {
	Subscribe(key Key, fn Handler) (unsubscribe func())
}

// Bus is an in-process invalidation bus. It is safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Key]map[uint64]Handler
	nextID uint64
	logger zerolog.Logger
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{
		subs:   make(map[Key]map[uint64]Handler),
		logger: logx.Component("events"),
	}
}

// Subscribe registers fn for key and returns a function that removes it.
func (b *Bus) Subscribe(key Key, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID

	if b.subs[key] == nil {
		b.subs[key] = make(map[uint64]Handler)
	}
	b.subs[key][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[key], id)
			if len(b.subs[key]) == 0 {
				delete(b.subs, key)
			}
		})
	}
}

// Invalidate notifies every subscriber of each key. Handlers run synchronously on
// the caller's goroutine, outside the bus lock, so they may subscribe or unsubscribe.
func (b *Bus) Invalidate(keys ...Key) {
	for _, key := range keys {
		b.mu.RLock()
		handlers := make([]Handler, 0, len(b.subs[key]))
		for _, fn := range b.subs[key] {
			handlers = append(handlers, fn)
		}
		b.mu.RUnlock()

		b.logger.Debug().
			Str("feed", string(key)).
			Int("subscribers", len(handlers)).
			Msg("Feed invalidated.")

		for _, fn := range handlers {
			fn(key)
		}
	}
}

// Subscribers returns the number of handlers registered for key.
func (b *Bus) Subscribers(key Key) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[key])
}
