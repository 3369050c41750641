package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const idemNS = ns + ":idem"

// A key holds "LOCK:<fingerprint>" while its request runs and
// "RES:<fingerprint>:<response>" once the response is stored.
const (
	pendingPrefix = "LOCK:"
	donePrefix    = "RES:"
)

var ErrMalformedIdemRecord = errors.New("malformed idempotency record")

// KeyIdemBooking scopes an Idempotency-Key to the user sending it.
func KeyIdemBooking(ownerID int64, idemKey string) string {
	return fmt.Sprintf("%s:bookings:%d:%s", idemNS, ownerID, idemKey)
}

type IdemState int

const (
	IdemAbsent IdemState = iota
	IdemPending
	IdemDone
)

// IdemRecord is what an Idempotency-Key currently maps to. Fingerprint
// identifies the request body the key was first used with.
type IdemRecord struct {
	State       IdemState
	Fingerprint string
	Payload     string
}

type IdempotencyStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewIdempotencyStore keeps stored responses for ttl.
func NewIdempotencyStore(rdb redis.Cmdable, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

func (s *IdempotencyStore) Lookup(ctx context.Context, key string) (IdemRecord, error) {
	const op = "redis.IdempotencyStore.Lookup"

	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return IdemRecord{State: IdemAbsent}, nil
	}
	if err != nil {
		return IdemRecord{}, fmt.Errorf("%s:%w", op, err)
	}

	rec, err := parseIdemRecord(v)
	if err != nil {
		return IdemRecord{}, fmt.Errorf("%s:%w", op, err)
	}
	return rec, nil
}

func parseIdemRecord(v string) (IdemRecord, error) {
	if fp, ok := strings.CutPrefix(v, pendingPrefix); ok {
		return IdemRecord{State: IdemPending, Fingerprint: fp}, nil
	}
	if rest, ok := strings.CutPrefix(v, donePrefix); ok {
		fp, payload, found := strings.Cut(rest, ":")
		if !found {
			return IdemRecord{}, ErrMalformedIdemRecord
		}
		return IdemRecord{State: IdemDone, Fingerprint: fp, Payload: payload}, nil
	}
	return IdemRecord{}, ErrMalformedIdemRecord
}

// AcquireLock claims key for one in-flight request with the given body
// fingerprint. False means the key is already pending or done.
func (s *IdempotencyStore) AcquireLock(ctx context.Context, key, fingerprint string, lockTTL time.Duration) (bool, error) {
	const op = "redis.IdempotencyStore.AcquireLock"

	ok, err := s.rdb.SetNX(ctx, key, pendingPrefix+fingerprint, lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("%s:%w", op, err)
	}
	return ok, nil
}

// SaveResult replaces the lock with the response, kept for the store's TTL.
func (s *IdempotencyStore) SaveResult(ctx context.Context, key, fingerprint, jsonPayload string) error {
	const op = "redis.IdempotencyStore.SaveResult"

	if err := s.rdb.Set(ctx, key, donePrefix+fingerprint+":"+jsonPayload, s.ttl).Err(); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}
	return nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	const op = "redis.IdempotencyStore.Release"

	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}
	return nil
}
