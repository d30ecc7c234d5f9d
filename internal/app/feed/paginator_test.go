package feed

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamify/internal/app/events"
	"streamify/internal/app/user"
	"streamify/internal/pkg/errs"
)

// stubFetcher serves total records in pages of the requested size.
type stubFetcher struct {
	mu       sync.Mutex
	total    int
	calls    []int
	sizes    []int
	inFlight int32
	maxSeen  int32

	// block, when set, is consulted before each page is returned.
	block func(ctx context.Context, page int)
	err   error
}

func (s *stubFetcher) FetchFriendRequests(ctx context.Context, _ Direction, page, pageSize int) (Page[FriendRequest], error) {
	n := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&s.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&s.maxSeen, seen, n) {
			break
		}
	}

	s.mu.Lock()
	s.calls = append(s.calls, page)
	s.sizes = append(s.sizes, pageSize)
	total, err, block := s.total, s.err, s.block
	s.mu.Unlock()

	if block != nil {
		block(ctx, page)
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return Page[FriendRequest]{}, err
	}

	size := pageSize
	if size == 0 {
		size = 10
	}
	last := (total + size - 1) / size
	if last == 0 {
		last = 1
	}

	var items []FriendRequest
	for i := (page-1)*size + 1; i <= page*size && i <= total; i++ {
		items = append(items, FriendRequest{
			ID:     fmt.Sprintf("r%d", i),
			Sender: user.User{ID: fmt.Sprintf("u%d", i), FullName: fmt.Sprintf("User %d", i)},
			Status: StatusPending,
		})
	}

	return Page[FriendRequest]{
		Items:    items,
		Metadata: Metadata{CurrentPage: page, LastPage: last, TotalRecords: total},
	}, nil
}

func (s *stubFetcher) Calls() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.calls...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	errors []string
}

func (r *recordingNotifier) Success(string) {}
func (r *recordingNotifier) Error(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, msg)
}

func ids(items []FriendRequest) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestPaginator_OutgoingThirteenRecordsInThreePages(t *testing.T) {
	fetcher := &stubFetcher{total: 13}
	p := NewRequests(fetcher, Outgoing)

	items, err := p.Drain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, fetcher.Calls())
	assert.Equal(t, []int{6, 6, 6}, fetcher.sizes)
	assert.Len(t, items, 13)
	assert.False(t, p.HasNext())

	fetched, err := p.FetchNext(context.Background())
	require.NoError(t, err)
	assert.False(t, fetched)
	assert.Equal(t, []int{1, 2, 3}, fetcher.Calls(), "no fetch after the last page")

	state := p.State()
	assert.Equal(t, 13, state.TotalRecords)
	assert.False(t, state.Empty)
	assert.Len(t, p.State().Items, 13)
}

func TestPaginator_PageSizes(t *testing.T) {
	incoming := &stubFetcher{total: 3}
	require.NoError(t, NewRequests(incoming, Incoming).Load(context.Background()))
	assert.Equal(t, []int{0}, incoming.sizes, "incoming feed leaves the size to the backend")

	custom := &stubFetcher{total: 3}
	require.NoError(t, NewRequests(custom, Outgoing, WithPageSize(2)).Load(context.Background()))
	assert.Equal(t, []int{2}, custom.sizes)
}

func TestPaginator_EmptyFeedIsTerminal(t *testing.T) {
	fetcher := &stubFetcher{total: 0}
	p := NewRequests(fetcher, Outgoing)

	require.NoError(t, p.Load(context.Background()))

	state := p.State()
	assert.True(t, state.Loaded)
	assert.True(t, state.Empty)
	assert.False(t, state.HasNext)
	assert.Empty(t, state.Items)

	fetched, err := p.OnApproachingEnd(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, fetched)
	assert.Equal(t, []int{1}, fetcher.Calls())
}

func TestPaginator_HasNextFollowsMetadata(t *testing.T) {
	fetcher := &stubFetcher{total: 7}
	p := NewRequests(fetcher, Outgoing)

	assert.False(t, p.HasNext(), "nothing fetched yet")
	require.NoError(t, p.Load(context.Background()))
	assert.True(t, p.HasNext())

	fetched, err := p.FetchNext(context.Background())
	require.NoError(t, err)
	assert.True(t, fetched)
	assert.False(t, p.HasNext())
}

func TestPaginator_OnApproachingEndRespectsMargin(t *testing.T) {
	fetcher := &stubFetcher{total: 20}
	p := NewRequests(fetcher, Outgoing)
	require.NoError(t, p.Load(context.Background()))

	fetched, err := p.OnApproachingEnd(context.Background(), 150)
	require.NoError(t, err)
	assert.False(t, fetched)

	fetched, err = p.OnApproachingEnd(context.Background(), 100)
	require.NoError(t, err)
	assert.True(t, fetched)

	p2 := NewRequests(&stubFetcher{total: 20}, Outgoing, WithTriggerMargin(10))
	require.NoError(t, p2.Load(context.Background()))
	fetched, err = p2.OnApproachingEnd(context.Background(), 50)
	require.NoError(t, err)
	assert.False(t, fetched)
}

func TestPaginator_SingleRequestInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan int, 4)
	fetcher := &stubFetcher{total: 30}
	fetcher.block = func(_ context.Context, page int) {
		started <- page
		<-release
	}

	p := NewRequests(fetcher, Outgoing)

	done := make(chan error, 1)
	go func() { done <- p.Load(context.Background()) }()
	require.Equal(t, 1, <-started)

	for i := 0; i < 5; i++ {
		fetched, err := p.OnApproachingEnd(context.Background(), 0)
		require.NoError(t, err)
		assert.False(t, fetched, "signal while page 1 is outstanding must be ignored")
	}
	assert.True(t, p.State().Fetching)

	close(release)
	require.NoError(t, <-done)

	fetched, err := p.FetchNext(context.Background())
	require.NoError(t, err)
	assert.True(t, fetched)

	assert.Equal(t, []int{1, 2}, fetcher.Calls())
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetcher.maxSeen))
	assert.Equal(t, []string{"r1", "r2", "r3", "r4", "r5", "r6", "r7", "r8", "r9", "r10", "r11", "r12"}, ids(p.Items()))
}

func TestPaginator_StalePageResolvingFirstIsDropped(t *testing.T) {
	page2Started := make(chan struct{})
	releasePage2 := make(chan struct{})
	fetcher := &stubFetcher{total: 12}
	p := NewRequests(fetcher, Outgoing)
	require.NoError(t, p.Load(context.Background()))

	fetcher.mu.Lock()
	fetcher.block = func(_ context.Context, page int) {
		if page == 2 {
			close(page2Started)
			<-releasePage2
		}
	}
	fetcher.mu.Unlock()

	stale := make(chan bool, 1)
	go func() {
		fetched, _ := p.FetchNext(context.Background())
		stale <- fetched
	}()
	<-page2Started

	// Full invalidation while page 2 is outstanding, then page 2 settles first.
	p.Invalidate()
	close(releasePage2)
	assert.False(t, <-stale)
	assert.Empty(t, p.Items(), "the abandoned page 2 must not be rendered")

	require.NoError(t, p.Load(context.Background()))
	assert.Equal(t, []string{"r1", "r2", "r3", "r4", "r5", "r6"}, ids(p.Items()))
	assert.Equal(t, []int{1, 2, 1}, fetcher.Calls())
}

func TestPaginator_InvalidateCancelsOutstandingFetch(t *testing.T) {
	fetcher := &stubFetcher{total: 12}
	p := NewRequests(fetcher, Outgoing)
	require.NoError(t, p.Load(context.Background()))

	page2Started := make(chan struct{})
	abandoned := make(chan error, 1)
	fetcher.mu.Lock()
	fetcher.block = func(ctx context.Context, page int) {
		if page == 2 {
			close(page2Started)
			<-ctx.Done()
			abandoned <- ctx.Err()
		}
	}
	fetcher.mu.Unlock()

	stale := make(chan bool, 1)
	go func() {
		fetched, _ := p.FetchNext(context.Background())
		stale <- fetched
	}()
	<-page2Started

	p.Invalidate()
	require.NoError(t, p.Load(context.Background()))

	assert.ErrorIs(t, <-abandoned, context.Canceled)
	assert.False(t, <-stale)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetcher.maxSeen), "page 1 waits for the cancelled page 2 to return")
	assert.Equal(t, []int{1, 2, 1}, fetcher.Calls())
	assert.Equal(t, []string{"r1", "r2", "r3", "r4", "r5", "r6"}, ids(p.Items()))
}

func TestPaginator_LoadAfterInvalidateHonoursContext(t *testing.T) {
	fetcher := &stubFetcher{total: 12}
	p := NewRequests(fetcher, Outgoing)
	require.NoError(t, p.Load(context.Background()))

	release := make(chan struct{})
	page2Started := make(chan struct{})
	fetcher.mu.Lock()
	fetcher.block = func(_ context.Context, page int) {
		if page == 2 {
			close(page2Started)
			<-release
		}
	}
	fetcher.mu.Unlock()

	go func() { _, _ = p.FetchNext(context.Background()) }()
	<-page2Started
	p.Invalidate()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Load(ctx), context.DeadlineExceeded)
	assert.Equal(t, []int{1, 2}, fetcher.Calls(), "no fetch starts while the cancelled one is outstanding")

	close(release)
	require.NoError(t, p.Load(context.Background()))
	assert.Equal(t, []int{1, 2, 1}, fetcher.Calls())
}

func TestPaginator_ItemsNeverSkipAMissingPage(t *testing.T) {
	p := NewRequests(&stubFetcher{}, Outgoing)
	p.pages[2] = Page[FriendRequest]{Items: []FriendRequest{{ID: "late"}}}
	assert.Empty(t, p.Items())

	p.pages[1] = Page[FriendRequest]{Items: []FriendRequest{{ID: "early"}}}
	assert.Equal(t, []string{"early", "late"}, ids(p.Items()))
}

func TestPaginator_TransientErrorNotifiedOnceAndNotRetried(t *testing.T) {
	notifier := &recordingNotifier{}
	fetcher := &stubFetcher{total: 5, err: errs.NewError(errs.ErrTransientFetch)}
	p := NewRequests(fetcher, Incoming, WithNotifier(notifier))

	err := p.Load(context.Background())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrTransientFetch))
	assert.Equal(t, []int{1}, fetcher.Calls())
	assert.Equal(t, []string{"Sorry we have problem in our server. Please try again later!"}, notifier.errors)
	assert.Error(t, p.State().Err)
	assert.False(t, p.State().Loaded)

	fetcher.mu.Lock()
	fetcher.err = nil
	fetcher.mu.Unlock()
	require.NoError(t, p.Load(context.Background()))
	assert.NoError(t, p.State().Err)
	assert.Len(t, notifier.errors, 1)
}

func TestPaginator_CancelledFetchIsNotNotified(t *testing.T) {
	notifier := &recordingNotifier{}
	fetcher := &stubFetcher{err: errs.Wrap(errs.ErrTransientFetch, context.Canceled)}
	p := NewRequests(fetcher, Incoming, WithNotifier(notifier))

	require.Error(t, p.Load(context.Background()))
	assert.Empty(t, notifier.errors)
}

func TestPaginator_InvalidMetadataRejected(t *testing.T) {
	fetcher := FetcherFunc[FriendRequest](func(context.Context, int, int) (Page[FriendRequest], error) {
		return Page[FriendRequest]{Metadata: Metadata{CurrentPage: 3, LastPage: 2, TotalRecords: 9}}, nil
	})
	p := New[FriendRequest](fetcher, events.OutgoingRequests)

	err := p.Load(context.Background())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrTransientFetch))
	assert.False(t, p.State().Loaded)
}

func TestPaginator_BoundInvalidationRestartsFromPageOne(t *testing.T) {
	bus := events.NewBus()
	fetcher := &stubFetcher{total: 13}
	p := NewRequests(fetcher, Incoming, WithPageSize(6))
	unsubscribe := p.Bind(bus)
	defer unsubscribe()

	_, err := p.Drain(context.Background())
	require.NoError(t, err)
	require.Len(t, p.Items(), 13)

	bus.Invalidate(events.OutgoingRequests)
	assert.Len(t, p.Items(), 13, "other feeds are not affected")

	bus.Invalidate(events.IncomingRequests)
	assert.Empty(t, p.Items())
	assert.False(t, p.State().Loaded)

	require.NoError(t, p.Load(context.Background()))
	assert.Equal(t, []int{1, 2, 3, 1}, fetcher.Calls())
}

func TestPaginator_ConcurrentSignals(t *testing.T) {
	fetcher := &stubFetcher{total: 60}
	fetcher.block = func(context.Context, int) { time.Sleep(time.Millisecond) }
	p := NewRequests(fetcher, Outgoing)
	require.NoError(t, p.Load(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = p.OnApproachingEnd(context.Background(), 0)
		}()
	}
	wg.Wait()

	calls := fetcher.Calls()
	for i, page := range calls {
		assert.Equal(t, i+1, page, "pages are requested in strictly increasing order")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetcher.maxSeen))
	assert.Equal(t, ids(p.Items())[:6], []string{"r1", "r2", "r3", "r4", "r5", "r6"})
}

type stubFriends struct {
	mu    sync.Mutex
	calls []int
}

func (s *stubFriends) FetchFriends(_ context.Context, page, _ int) (Page[user.User], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, page)
	return Page[user.User]{
		Items:    []user.User{{ID: fmt.Sprintf("f%d", page)}},
		Metadata: Metadata{CurrentPage: page, LastPage: 2, TotalRecords: 2},
	}, nil
}

func TestFriends_BoundToFriendsKey(t *testing.T) {
	bus := events.NewBus()
	src := &stubFriends{}
	p := NewFriends(src)
	defer p.Bind(bus)()
	assert.Equal(t, events.Friends, p.Key())

	friends, err := p.Drain(context.Background())
	require.NoError(t, err)
	assert.Len(t, friends, 2)

	bus.Invalidate(events.IncomingRequests)
	assert.True(t, p.State().Loaded)

	bus.Invalidate(events.Friends)
	assert.False(t, p.State().Loaded)
	require.NoError(t, p.Load(context.Background()))
	assert.Equal(t, []int{1, 2, 1}, src.calls)
}
