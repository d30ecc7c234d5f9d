package friendreq

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamify/internal/app/events"
	"streamify/internal/app/feed"
	"streamify/internal/app/user"
	"streamify/internal/pkg/errs"
)

type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	errors    []string
}

func (r *recordingNotifier) Success(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes = append(r.successes, msg)
}

func (r *recordingNotifier) Error(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, msg)
}

// fakeBackend keeps pending requests in memory and serves them as pages of two.
type fakeBackend struct {
	mu      sync.Mutex
	pending []feed.FriendRequest
	friends []user.User
	fetches []int
	err     error

	friendFetches []int

	// block, when set, is received from before a mutation returns.
	block chan struct{}
}

func newFakeBackend(n int) *fakeBackend {
	b := &fakeBackend{}
	for i := 1; i <= n; i++ {
		b.pending = append(b.pending, feed.FriendRequest{
			ID:     fmt.Sprintf("r%d", i),
			Sender: user.User{ID: fmt.Sprintf("u%d", i), FullName: fmt.Sprintf("User %d", i)},
			Status: feed.StatusPending,
		})
	}
	return b
}

func pageOf[T any](all []T, page int) feed.Page[T] {
	const size = 2
	last := max((len(all)+size-1)/size, 1)
	lo := min((page-1)*size, len(all))
	hi := min(page*size, len(all))

	return feed.Page[T]{
		Items:    append([]T(nil), all[lo:hi]...),
		Metadata: feed.Metadata{CurrentPage: page, LastPage: last, TotalRecords: len(all)},
	}
}

func (b *fakeBackend) FetchFriendRequests(_ context.Context, _ feed.Direction, page, _ int) (feed.Page[feed.FriendRequest], error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetches = append(b.fetches, page)
	return pageOf(b.pending, page), nil
}

func (b *fakeBackend) FetchFriends(_ context.Context, page, _ int) (feed.Page[user.User], error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.friendFetches = append(b.friendFetches, page)
	return pageOf(b.friends, page), nil
}

func (b *fakeBackend) mutate(ctx context.Context, id string, to feed.Status) (feed.FriendRequest, error) {
	if b.block != nil {
		select {
		case <-b.block:
		case <-ctx.Done():
			return feed.FriendRequest{}, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.err != nil {
		return feed.FriendRequest{}, b.err
	}
	for i, r := range b.pending {
		if r.ID == id {
			b.pending = append(b.pending[:i], b.pending[i+1:]...)
			if to == feed.StatusAccepted {
				b.friends = append(b.friends, r.Sender)
			}
			r.Status = to
			return r, nil
		}
	}
	return feed.FriendRequest{}, errs.NewError(errs.ErrConflict)
}

func (b *fakeBackend) AcceptFriendRequest(ctx context.Context, id string) (feed.FriendRequest, error) {
	return b.mutate(ctx, id, feed.StatusAccepted)
}

func (b *fakeBackend) RejectFriendRequest(ctx context.Context, id string) (feed.FriendRequest, error) {
	return b.mutate(ctx, id, feed.StatusRejected)
}

func (b *fakeBackend) Fetches() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.fetches...)
}

func (b *fakeBackend) FriendFetches() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.friendFetches...)
}

type fixture struct {
	backend  *fakeBackend
	bus      *events.Bus
	notifier *recordingNotifier
	incoming *feed.Paginator[feed.FriendRequest]
	friends  *feed.Paginator[user.User]
	manager  *Manager
}

func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	f := &fixture{backend: newFakeBackend(n), bus: events.NewBus(), notifier: &recordingNotifier{}}
	f.incoming = feed.NewRequests(f.backend, feed.Incoming)
	t.Cleanup(f.incoming.Bind(f.bus))
	f.friends = feed.NewFriends(f.backend)
	t.Cleanup(f.friends.Bind(f.bus))
	f.manager = NewManager(f.backend, f.bus, WithNotifier(f.notifier))

	_, err := f.incoming.Drain(context.Background())
	require.NoError(t, err)
	return f
}

func requestIDs(items []feed.FriendRequest) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestAccept_InvalidatesIncomingAndFriends(t *testing.T) {
	f := newFixture(t, 3)
	var friendsInvalidated int
	t.Cleanup(f.manager.Subscribe(events.Friends, func(events.Key) { friendsInvalidated++ }))

	target := f.incoming.Items()[1]
	require.NoError(t, f.manager.Accept(context.Background(), target))

	assert.False(t, f.incoming.State().Loaded, "feed state is discarded, not patched")
	assert.Equal(t, 1, friendsInvalidated)
	assert.Equal(t, []string{"You are now friend with User 2"}, f.notifier.successes)
	assert.Empty(t, f.notifier.errors)

	items, err := f.incoming.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r3"}, requestIDs(items))
	assert.Equal(t, []int{1, 2, 1}, f.backend.Fetches())
}

func TestAccept_FriendsFeedRefetchesFromFirstPage(t *testing.T) {
	f := newFixture(t, 3)
	f.backend.friends = []user.User{{ID: "f1"}, {ID: "f2"}, {ID: "f3"}}

	friends, err := f.friends.Drain(context.Background())
	require.NoError(t, err)
	require.Len(t, friends, 3)
	require.Equal(t, []int{1, 2}, f.backend.FriendFetches())

	require.NoError(t, f.manager.Accept(context.Background(), f.incoming.Items()[0]))
	assert.False(t, f.friends.State().Loaded)

	require.NoError(t, f.friends.Load(context.Background()))
	assert.Equal(t, []int{1, 2, 1}, f.backend.FriendFetches())

	friends, err = f.friends.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", friends[len(friends)-1].ID)
}

func TestAccept_ConflictTriggersFullRefetch(t *testing.T) {
	f := newFixture(t, 3)

	stale := f.incoming.Items()[0]
	_, err := f.backend.RejectFriendRequest(context.Background(), stale.ID)
	require.NoError(t, err)

	err = f.manager.Accept(context.Background(), stale)
	require.Error(t, err)
	assert.Equal(t, errs.ErrConflict, errs.Code(err))

	state := f.incoming.State()
	assert.False(t, state.Loaded)
	assert.Empty(t, state.Items, "no partial removal before the refetch")

	assert.Equal(t, []string{errs.Message(errs.NewError(errs.ErrConflict))}, f.notifier.errors)
	assert.Empty(t, f.notifier.successes)

	require.NoError(t, f.incoming.Load(context.Background()))
	assert.Equal(t, []string{"r2", "r3"}, requestIDs(f.incoming.Items()))
	assert.Equal(t, 1, f.backend.Fetches()[len(f.backend.Fetches())-1])
}

func TestAccept_TransientFailureKeepsFeed(t *testing.T) {
	f := newFixture(t, 3)
	f.backend.err = errs.NewError(errs.ErrTransientFetch)

	err := f.manager.Accept(context.Background(), f.incoming.Items()[0])
	assert.Equal(t, errs.ErrTransientFetch, errs.Code(err))

	assert.True(t, f.incoming.State().Loaded)
	assert.Len(t, f.incoming.Items(), 3)
	assert.Len(t, f.notifier.errors, 1)
}

func TestReject_InvalidatesIncoming(t *testing.T) {
	f := newFixture(t, 2)
	var friendsInvalidated int
	t.Cleanup(f.manager.Subscribe(events.Friends, func(events.Key) { friendsInvalidated++ }))

	require.NoError(t, f.manager.Reject(context.Background(), f.incoming.Items()[0]))

	assert.False(t, f.incoming.State().Loaded)
	assert.Zero(t, friendsInvalidated)
	assert.Equal(t, []string{"Friend request from User 1 rejected"}, f.notifier.successes)
}

func TestPending_WhileMutationInFlight(t *testing.T) {
	f := newFixture(t, 1)
	f.backend.block = make(chan struct{})
	target := f.incoming.Items()[0]

	done := make(chan error, 1)
	go func() { done <- f.manager.Accept(context.Background(), target) }()

	assert.Eventually(t, func() bool { return f.manager.Pending(target.ID) }, time.Second, 5*time.Millisecond)

	close(f.backend.block)
	require.NoError(t, <-done)
	assert.False(t, f.manager.Pending(target.ID))
}

func TestAccept_CancelledIsSilent(t *testing.T) {
	f := newFixture(t, 1)
	f.backend.block = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.manager.Accept(ctx, f.incoming.Items()[0])
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.notifier.errors)
	assert.True(t, f.incoming.State().Loaded)
}

func TestAccept_EmptyID(t *testing.T) {
	f := newFixture(t, 0)

	err := f.manager.Accept(context.Background(), feed.FriendRequest{})
	assert.True(t, errs.Is(err, errs.ErrInvalidParams))
}
