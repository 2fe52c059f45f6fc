package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "allocator/internal/errors"
	"allocator/internal/shared/testutil"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type evictions struct {
	mu      sync.Mutex
	reasons map[string]string
}

func (e *evictions) record(id, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reasons[id] = reason
}

func newTestStore(t *testing.T, ttl time.Duration, max int) (*Store, *fakeClock, *evictions) {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	ev := &evictions{reasons: map[string]string{}}
	st := NewStore(Options{TTL: ttl, Max: max, Now: clock.Now, OnEvict: ev.record}, logger)
	return st, clock, ev
}

func TestStore_CreateGetDelete(t *testing.T) {
	st, _, ev := newTestStore(t, time.Minute, 10)

	s := st.Create()
	assert.Len(t, s.ID, 36)
	assert.Equal(t, 1, st.Len())

	got, err := st.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, st.Delete(s.ID))
	assert.Equal(t, ReasonDeleted, ev.reasons[s.ID])

	_, err = st.Get(s.ID)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	assert.ErrorIs(t, st.Delete(s.ID), apperrors.ErrSessionNotFound)
}

func TestStore_Expiry(t *testing.T) {
	st, clock, ev := newTestStore(t, time.Minute, 10)

	idle := st.Create()
	active := st.Create()
	assert.Equal(t, clock.Now().Add(time.Minute), st.ExpiresAt(idle))

	clock.Advance(40 * time.Second)
	_, err := st.Get(active.ID)
	require.NoError(t, err)

	clock.Advance(40 * time.Second)
	assert.Equal(t, 1, st.Sweep())
	assert.Equal(t, ReasonExpired, ev.reasons[idle.ID])

	_, err = st.Get(active.ID)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = st.Get(active.ID)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	assert.Equal(t, 0, st.Len())
}

func TestStore_EvictsLeastRecentlyUsed(t *testing.T) {
	st, clock, ev := newTestStore(t, time.Hour, 2)

	a := st.Create()
	clock.Advance(time.Second)
	b := st.Create()
	clock.Advance(time.Second)
	_, err := st.Get(a.ID)
	require.NoError(t, err)
	clock.Advance(time.Second)

	c := st.Create()

	assert.Equal(t, 2, st.Len())
	assert.Equal(t, ReasonCapacity, ev.reasons[b.ID])
	_, err = st.Get(a.ID)
	assert.NoError(t, err)
	_, err = st.Get(c.ID)
	assert.NoError(t, err)
}

func TestStore_Run(t *testing.T) {
	st, clock, _ := newTestStore(t, time.Millisecond, 0)
	st.Create()
	clock.Advance(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- st.Run(ctx, 5*time.Millisecond) }()

	assert.Eventually(t, func() bool { return st.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestSession_DoSerializes(t *testing.T) {
	st, _, _ := newTestStore(t, time.Hour, 0)
	s := st.Create()

	var wg sync.WaitGroup
	count := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Do(func(*State) error {
				count++
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, count)
}
