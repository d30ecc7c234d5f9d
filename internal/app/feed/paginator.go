/*
Package feed implements the incrementally loaded feeds: pending friend requests in
both directions, the friends list and the recommended users.

A Paginator fetches pages from the backend in strictly increasing order, caches them
by page number and materialises their items in page order. The presentation layer
pulls the next page by reporting how close the end-of-list sentinel is; at most one
fetch is outstanding at a time. Invalidation discards everything, cancels the
outstanding fetch and restarts at page 1.
*/
package feed

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"streamify/internal/app/events"
	"streamify/internal/app/notify"
	"streamify/internal/pkg/errs"
	"streamify/internal/pkg/logx"
)

const (
	// DefaultTriggerMargin is the distance before the end of the list at which the
	// next page is requested.
	DefaultTriggerMargin = 100.0

	// OutgoingPageSize is the fixed page size of the outgoing feed.
	OutgoingPageSize = 6

	// firstPage is the number of the initial page.
	firstPage = 1
)

// Fetcher retrieves a single page of a feed. A pageSize of 0 leaves the size to the backend.
type Fetcher[T any] interface {
	FetchPage(ctx context.Context, page, pageSize int) (Page[T], error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc[T any] func(ctx context.Context, page, pageSize int) (Page[T], error)

func (f FetcherFunc[T]) FetchPage(ctx context.Context, page, pageSize int) (Page[T], error) {
	return f(ctx, page, pageSize)
}

type settings struct {
	pageSize int
	margin   float64
	notifier notify.Notifier
}

// Option configures a Paginator.
type Option func(*settings)

// WithPageSize overrides the default page size of the feed.
func WithPageSize(n int) Option {
	return func(s *settings) { s.pageSize = n }
}

// WithTriggerMargin overrides DefaultTriggerMargin.
func WithTriggerMargin(margin float64) Option {
	return func(s *settings) { s.margin = margin }
}

// WithNotifier reports failed fetches to n, once per failed fetch.
func WithNotifier(n notify.Notifier) Option {
	return func(s *settings) { s.notifier = n }
}

// pending is an outstanding page request.
type pending struct {
	page   int
	cancel context.CancelFunc
	done   chan struct{}
}

// Paginator owns the cached state of one feed. It is safe for concurrent use.
type Paginator[T any] struct {
	fetcher Fetcher[T]
	key     events.Key
	settings
	logger zerolog.Logger

	mu sync.Mutex

	// pages caches the fetched pages by page number.
	pages map[int]Page[T]

	// last is the metadata of the most recently fetched page.
	last *Metadata

	// inFlight is the fetch currently outstanding, nil when idle.
	inFlight *pending

	// abandoned is a fetch cancelled by Invalidate that has not settled yet.
	// No new fetch starts until it has.
	abandoned *pending

	// generation is bumped by Invalidate.
	generation uint64

	lastErr error
}

// New creates a Paginator for the feed identified by key, backed by fetcher.
func New[T any](fetcher Fetcher[T], key events.Key, opts ...Option) *Paginator[T] {
	p := &Paginator[T]{
		fetcher:  fetcher,
		key:      key,
		settings: settings{margin: DefaultTriggerMargin, notifier: notify.Nop{}},
		pages:    make(map[int]Page[T]),
		logger:   logx.Component("feed").With().Str("feed", string(key)).Logger(),
	}

	for _, opt := range opts {
		opt(&p.settings)
	}

	return p
}

// Key returns the invalidation key the paginator listens on.
func (p *Paginator[T]) Key() events.Key { return p.key }

// Bind subscribes the paginator to invalidations of its key.
func (p *Paginator[T]) Bind(sub events.Subscriber) (unsubscribe func()) {
	return sub.Subscribe(p.key, func(events.Key) { p.Invalidate() })
}

// Load fetches page 1 unless it is already cached or being fetched.
func (p *Paginator[T]) Load(ctx context.Context) error {
	_, err := p.fetch(ctx, func() (int, bool) { return firstPage, true })
	return err
}

// FetchNext requests current_page + 1 of the most recently fetched page, or page 1
// when nothing is cached. It is a no-op returning false while another fetch is
// outstanding, when there is no next page, or when the page is already cached.
func (p *Paginator[T]) FetchNext(ctx context.Context) (bool, error) {
	return p.fetch(ctx, p.nextPageLocked)
}

// OnApproachingEnd is the visibility callback of the end-of-list sentinel.
// distance is how far the sentinel is from the visible area; the next page is
// requested once it is within the trigger margin. Repeated signals while a fetch is
// in flight are ignored.
func (p *Paginator[T]) OnApproachingEnd(ctx context.Context, distance float64) (bool, error) {
	if distance > p.margin {
		return false, nil
	}
	return p.FetchNext(ctx)
}

// Drain loads pages until the feed is exhausted and returns the full item list.
func (p *Paginator[T]) Drain(ctx context.Context) ([]T, error) {
	if err := p.Load(ctx); err != nil {
		return nil, err
	}
	for p.HasNext() {
		fetched, err := p.FetchNext(ctx)
		if err != nil {
			return nil, err
		}
		if !fetched {
			break
		}
	}
	return p.Items(), nil
}

// Invalidate discards every cached page and cancels the outstanding fetch, whose
// result is dropped when it settles. The next Load starts from page 1 once the
// cancelled fetch has returned.
func (p *Paginator[T]) Invalidate() {
	p.mu.Lock()
	p.pages = make(map[int]Page[T])
	p.last = nil
	p.lastErr = nil
	if p.inFlight != nil {
		p.inFlight.cancel()
		p.abandoned = p.inFlight
		p.inFlight = nil
	}
	p.generation++
	gen := p.generation
	p.mu.Unlock()

	p.logger.Debug().Uint64("generation", gen).Msg("Feed state discarded.")
}

// Refresh invalidates the feed and loads page 1 again.
func (p *Paginator[T]) Refresh(ctx context.Context) error {
	p.Invalidate()
	return p.Load(ctx)
}

// HasNext reports whether current_page < last_page for the most recent page.
func (p *Paginator[T]) HasNext() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last != nil && p.last.HasNext()
}

// Items returns the items of all fetched pages in page order.
func (p *Paginator[T]) Items() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.itemsLocked()
}

// State returns a snapshot of the feed.
func (p *Paginator[T]) State() State[T] {
	p.mu.Lock()
	defer p.mu.Unlock()

	items := p.itemsLocked()
	first, loaded := p.pages[firstPage]
	hasNext := p.last != nil && p.last.HasNext()

	return State[T]{
		Items:        items,
		Loaded:       loaded,
		HasNext:      hasNext,
		Fetching:     p.inFlight != nil,
		Empty:        loaded && len(items) == 0 && !hasNext,
		TotalRecords: first.Metadata.TotalRecords,
		Err:          p.lastErr,
	}
}

// itemsLocked concatenates pages 1..n, stopping at the first missing page so that a
// later page is never rendered before an earlier one.
func (p *Paginator[T]) itemsLocked() []T {
	numbers := make([]int, 0, len(p.pages))
	for n := range p.pages {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	items := make([]T, 0)
	expected := firstPage
	for _, n := range numbers {
		if n != expected {
			break
		}
		items = append(items, p.pages[n].Items...)
		expected++
	}
	return items
}

// nextPageLocked picks the page following the most recent one. p.mu must be held.
func (p *Paginator[T]) nextPageLocked() (int, bool) {
	if p.last == nil {
		return firstPage, true
	}
	if !p.last.HasNext() {
		return 0, false
	}
	return p.last.CurrentPage + 1, true
}

// fetch requests the page chosen by pick unless another fetch is outstanding or the
// page is cached. pick runs under p.mu so concurrent callers cannot pick the same page.
func (p *Paginator[T]) fetch(ctx context.Context, pick func() (int, bool)) (bool, error) {
	p.mu.Lock()
	for p.abandoned != nil {
		settled := p.abandoned.done
		p.mu.Unlock()
		select {
		case <-settled:
		case <-ctx.Done():
			return false, ctx.Err()
		}
		p.mu.Lock()
	}
	if p.inFlight != nil {
		inFlight := p.inFlight.page
		p.mu.Unlock()
		p.logger.Debug().Int("in_flight", inFlight).Msg("Fetch refused, another page is outstanding.")
		return false, nil
	}
	page, ok := pick()
	if !ok {
		p.mu.Unlock()
		return false, nil
	}
	if _, cached := p.pages[page]; cached {
		p.mu.Unlock()
		return false, nil
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	cur := &pending{page: page, cancel: cancel, done: make(chan struct{})}
	p.inFlight = cur
	p.mu.Unlock()

	p.logger.Debug().Int("page", page).Int("page_size", p.pageSize).Msg("Fetching page.")

	result, err := p.fetcher.FetchPage(fetchCtx, page, p.pageSize)
	if err == nil {
		if verr := result.Metadata.Validate(); verr != nil {
			err = errs.Wrap(errs.ErrTransientFetch, verr)
		}
	}

	p.mu.Lock()
	close(cur.done)
	if p.inFlight != cur {
		if p.abandoned == cur {
			p.abandoned = nil
		}
		p.mu.Unlock()
		p.logger.Debug().Int("page", page).Msg("Discarding page fetched before invalidation.")
		return false, nil
	}
	p.inFlight = nil

	if err != nil {
		p.lastErr = err
		p.mu.Unlock()
		p.report(page, err)
		return false, err
	}

	p.pages[page] = result
	meta := result.Metadata
	p.last = &meta
	p.lastErr = nil
	p.mu.Unlock()

	p.logger.Debug().
		Int("page", page).
		Int("items", len(result.Items)).
		Int("last_page", meta.LastPage).
		Int("total_records", meta.TotalRecords).
		Msg("Page fetched.")

	return true, nil
}

func (p *Paginator[T]) report(page int, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}

	p.logger.Warn().Err(err).Int("page", page).Msg("Page fetch failed.")
	p.notifier.Error(errs.Message(err))
}
