package redis

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available: %v", err)
	}

	require.NoError(t, client.FlushDB(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "seatbook:v1:seats:map", KeySeatMap())
	assert.Equal(t, "seatbook:v1:seats:counts", KeySeatCounts())
	assert.Equal(t, "seatbook:v1:seats:gen", KeySeatGeneration())
	assert.Equal(t, "seatbook:v1:rl:bookings:42", KeyRateLimit("bookings", "42"))
	assert.Equal(t, "seatbook:v1:idem:bookings:7:abc", KeyIdemBooking(7, "abc"))
	assert.Equal(t, "seatbook:v1:seats:changed", ChannelSeatsChanged())
}

func TestDecodeSeatChange(t *testing.T) {
	change, ok := decodeSeatChange(`{"type":"seats_booked","booking_id":"6f1c2a0e-3a57-4bb1-9d8f-3e9f0d3f6a11","seat_ids":[1,2],"ts_unix":1}`)
	require.True(t, ok)
	assert.Equal(t, ChangeBooked, change.Type)
	assert.Equal(t, []int64{1, 2}, change.SeatIDs)

	_, ok = decodeSeatChange(`not json`)
	assert.False(t, ok)
	_, ok = decodeSeatChange(`{"type":"seats_booked","seat_ids":[]}`)
	assert.False(t, ok)
}

func TestCache(t *testing.T) {
	client := newTestClient(t)
	cache := New(client)
	ctx := context.Background()

	calls := 0
	load := func(ctx context.Context) ([]int, error) {
		calls++
		return []int{1, 2, 3}, nil
	}

	v, err := GetOrSetJSON(ctx, cache, KeySeatMap(), time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, v)

	v, err = GetOrSetJSON(ctx, cache, KeySeatMap(), time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, v)
	assert.Equal(t, 1, calls)

	n, err := client.Exists(ctx, KeySeatMap()+":g0").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, cache.InvalidateSeats(ctx))
	v, err = GetOrSetJSON(ctx, cache, KeySeatMap(), time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, v)
	assert.Equal(t, 2, calls)

	n, err = client.Exists(ctx, KeySeatMap()+":g1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCache_LoaderError(t *testing.T) {
	client := newTestClient(t)
	cache := New(client)
	boom := errors.New("boom")

	_, err := GetOrSetJSON(context.Background(), cache, KeySeatCounts(), time.Minute,
		func(ctx context.Context) (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)

	n, err := client.Exists(context.Background(), KeySeatCounts()+":g0").Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCache_CanceledCallerDoesNotFailJoiners(t *testing.T) {
	client := newTestClient(t)
	cache := New(client)

	var calls atomic.Int32
	var once sync.Once
	started := make(chan struct{})
	release := make(chan struct{})
	load := func(ctx context.Context) (int, error) {
		calls.Add(1)
		once.Do(func() { close(started) })
		<-release
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return 42, nil
	}

	firstCtx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := GetOrSetJSON(firstCtx, cache, KeySeatCounts(), time.Minute, load)
		first <- err
	}()

	<-started
	cancel()
	select {
	case err := <-first:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("canceled caller kept waiting on the shared load")
	}

	type result struct {
		v   int
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, err := GetOrSetJSON(context.Background(), cache, KeySeatCounts(), time.Minute, load)
		second <- result{v, err}
	}()

	// Give the second caller time to join the load still in flight.
	time.Sleep(50 * time.Millisecond)
	close(release)

	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, 42, res.v)
	assert.Equal(t, int32(1), calls.Load())

	v, err := GetOrSetJSON(context.Background(), cache, KeySeatCounts(), time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, int32(1), calls.Load(), "the detached load stored its result")
}

func TestIdempotencyStore(t *testing.T) {
	client := newTestClient(t)
	store := NewIdempotencyStore(client, time.Minute)
	ctx := context.Background()
	key := KeyIdemBooking(1, "k1")

	rec, err := store.Lookup(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, IdemAbsent, rec.State)

	ok, err := store.AcquireLock(ctx, key, "fp1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	rec, err = store.Lookup(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, IdemRecord{State: IdemPending, Fingerprint: "fp1"}, rec)

	ok, err = store.AcquireLock(ctx, key, "fp2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SaveResult(ctx, key, "fp1", `{"id":"x:y"}`))
	rec, err = store.Lookup(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, IdemRecord{State: IdemDone, Fingerprint: "fp1", Payload: `{"id":"x:y"}`}, rec)

	ttl, err := client.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 30*time.Second)

	require.NoError(t, store.Release(ctx, key))
	rec, err = store.Lookup(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, IdemAbsent, rec.State)

	require.NoError(t, client.Set(ctx, key, "garbage", time.Minute).Err())
	_, err = store.Lookup(ctx, key)
	assert.ErrorIs(t, err, ErrMalformedIdemRecord)
}

func TestParseIdemRecord(t *testing.T) {
	tests := []struct {
		in      string
		want    IdemRecord
		wantErr bool
	}{
		{in: "LOCK:abc", want: IdemRecord{State: IdemPending, Fingerprint: "abc"}},
		{in: "RES:abc:{\"a\":\"b:c\"}", want: IdemRecord{State: IdemDone, Fingerprint: "abc", Payload: `{"a":"b:c"}`}},
		{in: "RES:abc", wantErr: true},
		{in: "LOCK", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseIdemRecord(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedIdemRecord)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSlidingWindowLimiter(t *testing.T) {
	client := newTestClient(t)
	limiter := NewSlidingWindowLimiter(client, "test", 2, time.Minute)
	clock := time.Now()
	limiter.now = func() time.Time { return clock }
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		allowed, current, _, err := limiter.Allow(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, int64(i), current)
	}

	clock = clock.Add(10 * time.Second)
	allowed, current, retry, err := limiter.Allow(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, int64(2), current)
	assert.Equal(t, 50*time.Second, retry)

	// Rejected attempts are not recorded.
	allowed, current, _, err = limiter.Allow(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, int64(2), current)

	allowed, _, _, err = limiter.Allow(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, allowed)

	clock = clock.Add(51 * time.Second)
	allowed, current, _, err = limiter.Allow(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, int64(1), current)
}

func TestSeatsPubSub(t *testing.T) {
	client := newTestClient(t)
	ps := NewSeatsPubSub(client)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	got := make(chan SeatChange, 1)
	go func() {
		_ = ps.Subscribe(ctx, func(ctx context.Context, change SeatChange) {
			got <- change
		})
	}()

	id := uuid.New()
	require.Eventually(t, func() bool {
		if err := ps.PublishSeatsChanged(ctx, ChangeReleased, id, []int64{4}); err != nil {
			return false
		}
		select {
		case change := <-got:
			return change.BookingID == id && change.Type == ChangeReleased
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
