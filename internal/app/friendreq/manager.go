/*
Package friendreq manages the lifecycle of pending friend requests.

The manager never edits cached feeds. After a confirmed mutation it declares the
affected feeds stale on the invalidation bus and every subscribed paginator
refetches from page 1, so what the user sees is always backend state.
*/
package friendreq

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"streamify/internal/app/events"
	"streamify/internal/app/feed"
	"streamify/internal/app/notify"
	"streamify/internal/pkg/errs"
	"streamify/internal/pkg/logx"
)

// Mutator performs friend-request mutations on the backend. *backend.Client implements it.
type Mutator interface {
	AcceptFriendRequest(ctx context.Context, id string) (feed.FriendRequest, error)
	RejectFriendRequest(ctx context.Context, id string) (feed.FriendRequest, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithNotifier sends success and failure notices to n.
func WithNotifier(n notify.Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// Manager issues accept and reject mutations. It is safe for concurrent use.
type Manager struct {
	backend  Mutator
	bus      *events.Bus
	notifier notify.Notifier

	mu      sync.Mutex
	pending map[string]int

	logger zerolog.Logger
}

// NewManager returns a Manager publishing invalidations on bus.
func NewManager(backend Mutator, bus *events.Bus, opts ...Option) *Manager {
	m := &Manager{
		backend:  backend,
		bus:      bus,
		notifier: notify.Nop{},
		pending:  make(map[string]int),
		logger:   logx.Component("friendreq"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers fn for invalidations of key. Only the manager publishes.
func (m *Manager) Subscribe(key events.Key, fn events.Handler) func() {
	return m.bus.Subscribe(key, fn)
}

// Pending reports whether a mutation of request id is in flight. Callers disable
// the accept and reject actions while it is; the manager does not deduplicate.
func (m *Manager) Pending(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending[id] > 0
}

// Accept accepts an incoming request.
//
// On success the incoming feed and the friends list are invalidated and the user
// is told who they are now friends with. ErrConflict means the request is no longer
// pending; the incoming feed is invalidated so it self-corrects. Transient failures
// are reported and returned without invalidating anything.
func (m *Manager) Accept(ctx context.Context, r feed.FriendRequest) error {
	if r.ID == "" {
		return errs.Wrap(errs.ErrInvalidParams, errors.New("friend request id is empty"))
	}

	done := m.begin(r.ID)
	defer done()

	_, err := m.backend.AcceptFriendRequest(ctx, r.ID)
	if err != nil {
		return m.fail(ctx, r, "accept", err)
	}

	m.bus.Invalidate(events.IncomingRequests, events.Friends)
	m.notifier.Success("You are now friend with " + displayName(r))

	m.logger.Info().Str("request_id", r.ID).Msg("Friend request accepted.")
	return nil
}

// Reject rejects an incoming request. The incoming feed is invalidated on success
// and on conflict; errors are reported as by Accept.
func (m *Manager) Reject(ctx context.Context, r feed.FriendRequest) error {
	if r.ID == "" {
		return errs.Wrap(errs.ErrInvalidParams, errors.New("friend request id is empty"))
	}

	done := m.begin(r.ID)
	defer done()

	_, err := m.backend.RejectFriendRequest(ctx, r.ID)
	if err != nil {
		return m.fail(ctx, r, "reject", err)
	}

	m.bus.Invalidate(events.IncomingRequests)
	m.notifier.Success("Friend request from " + displayName(r) + " rejected")

	m.logger.Info().Str("request_id", r.ID).Msg("Friend request rejected.")
	return nil
}

func (m *Manager) begin(id string) func() {
	m.mu.Lock()
	m.pending[id]++
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.pending[id]--; m.pending[id] <= 0 {
			delete(m.pending, id)
		}
	}
}

// fail reports err once and invalidates the incoming feed on conflict.
// Cancelled mutations are returned silently.
func (m *Manager) fail(ctx context.Context, r feed.FriendRequest, action string, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}

	logger := m.logger.With().Str("request_id", r.ID).Str("action", action).Logger()

	if errs.Is(err, errs.ErrConflict) {
		logger.Info().Err(err).Msg("Friend request no longer pending.")
		m.notifier.Error(errs.Message(err))
		m.bus.Invalidate(events.IncomingRequests)
		return err
	}

	logger.Warn().Err(err).Msg("Friend request mutation failed.")
	m.notifier.Error(errs.Message(err))
	return err
}

func displayName(r feed.FriendRequest) string {
	sender := r.Counterparty(feed.Incoming)
	if sender.FullName != "" {
		return sender.FullName
	}
	return sender.ID
}
