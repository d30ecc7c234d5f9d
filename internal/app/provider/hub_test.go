package provider

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamify/internal/app/user"
	"streamify/internal/pkg/errs"
)

type fakeClient struct {
	userID string
	token  string
	closed atomic.Bool
}

func (c *fakeClient) UserID() string { return c.userID }
func (c *fakeClient) Alive() bool    { return !c.closed.Load() }
func (c *fakeClient) Close() error {
	c.closed.Store(true)
	return nil
}

type countingFactory struct {
	connects atomic.Int32
	err      error
}

func (f *countingFactory) connect(_ context.Context, apiKey string, id user.Identity, token string) (*fakeClient, error) {
	f.connects.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &fakeClient{userID: id.ID, token: apiKey + ":" + token}, nil
}

func TestAcquire_ReusesLiveClientForSameUser(t *testing.T) {
	f := &countingFactory{}
	h := NewHub("chat", "key-1", f.connect)

	a, err := h.Acquire(context.Background(), user.Identity{ID: "u1"}, "t1")
	require.NoError(t, err)
	b, err := h.Acquire(context.Background(), user.Identity{ID: "u1"}, "t2")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, "key-1:t1", b.token)
	assert.Equal(t, int32(1), f.connects.Load())
}

func TestAcquire_ReplacesClientOfAnotherUser(t *testing.T) {
	f := &countingFactory{}
	h := NewHub("chat", "key-1", f.connect)

	a, err := h.Acquire(context.Background(), user.Identity{ID: "u1"}, "t1")
	require.NoError(t, err)
	b, err := h.Acquire(context.Background(), user.Identity{ID: "u2"}, "t2")
	require.NoError(t, err)

	assert.False(t, a.Alive())
	assert.True(t, b.Alive())
	assert.Equal(t, "u2", b.UserID())
	assert.Equal(t, int32(2), f.connects.Load())
}

func TestAcquire_ReconnectsDeadClient(t *testing.T) {
	f := &countingFactory{}
	h := NewHub("video", "key-1", f.connect)

	a, err := h.Acquire(context.Background(), user.Identity{ID: "u1"}, "t1")
	require.NoError(t, err)
	_ = a.Close()

	b, err := h.Acquire(context.Background(), user.Identity{ID: "u1"}, "t1")
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}

func TestAcquire_Concurrent_SingleConnect(t *testing.T) {
	f := &countingFactory{}
	h := NewHub("chat", "key-1", f.connect)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Acquire(context.Background(), user.Identity{ID: "u1"}, "t1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.connects.Load())
}

func TestAcquire_Errors(t *testing.T) {
	boom := errors.New("dial failed")
	f := &countingFactory{err: boom}
	h := NewHub("chat", "key-1", f.connect)

	_, err := h.Acquire(context.Background(), user.Identity{}, "t1")
	assert.True(t, errs.Is(err, errs.ErrInvalidParams))

	_, err = h.Acquire(context.Background(), user.Identity{ID: "u1"}, "t1")
	assert.ErrorIs(t, err, boom)
	_, ok := h.Current()
	assert.False(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.Acquire(ctx, user.Identity{ID: "u1"}, "t1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReleaseAndShutdown(t *testing.T) {
	f := &countingFactory{}
	h := NewHub("chat", "key-1", f.connect)

	a, err := h.Acquire(context.Background(), user.Identity{ID: "u1"}, "t1")
	require.NoError(t, err)

	h.Release()
	assert.False(t, a.Alive())
	_, ok := h.Current()
	assert.False(t, ok)

	h.Release()

	_, err = h.Acquire(context.Background(), user.Identity{ID: "u1"}, "t1")
	require.NoError(t, err)

	h.Shutdown()
	_, err = h.Acquire(context.Background(), user.Identity{ID: "u1"}, "t1")
	assert.True(t, errs.Is(err, errs.ErrProviderClosed))
}
