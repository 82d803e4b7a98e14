// Package redisstore keeps idempotency records for ledger requests.
package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingMarker = "__pending__"

// ErrInProgress means another request with the same key has claimed it and
// not finished yet.
var ErrInProgress = errors.New("redisstore: request with this idempotency key is in progress")

type Store struct {
	rdb redis.UniversalClient
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func NewFromClient(rdb redis.UniversalClient) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func idemKey(scope, key string) string {
	return "idem:" + scope + ":" + key
}

// Claim reserves key within scope for ttl. When the key was already used
// and completed, the stored result is returned with claimed=false.
func (s *Store) Claim(ctx context.Context, scope, key string, ttl time.Duration) (claimed bool, stored []byte, err error) {
	k := idemKey(scope, key)
	ok, err := s.rdb.SetNX(ctx, k, pendingMarker, ttl).Result()
	if err != nil {
		return false, nil, err
	}
	if ok {
		return true, nil, nil
	}

	val, err := s.rdb.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; try once more
		ok, err = s.rdb.SetNX(ctx, k, pendingMarker, ttl).Result()
		if err != nil {
			return false, nil, err
		}
		if ok {
			return true, nil, nil
		}
		return false, nil, ErrInProgress
	}
	if err != nil {
		return false, nil, err
	}
	if string(val) == pendingMarker {
		return false, nil, ErrInProgress
	}
	return false, val, nil
}

// Complete stores the result of a claimed request for replay.
func (s *Store) Complete(ctx context.Context, scope, key string, result []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, idemKey(scope, key), result, ttl).Err()
}

// Release forgets a claim so the client may retry, used when the request
// failed before producing a result.
func (s *Store) Release(ctx context.Context, scope, key string) error {
	return s.rdb.Del(ctx, idemKey(scope, key)).Err()
}
