package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "otp"

// RedisStore keeps challenge records in Redis with a TTL matching the
// challenge expiry. Attempt increments run inside a WATCH transaction so that
// two concurrent verifications for the same email serialize instead of both
// reading a stale count.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) key(email string) string {
	return keyPrefix + ":" + strings.ToLower(strings.TrimSpace(email))
}

func (s *RedisStore) Replace(ctx context.Context, email string, rec *Record, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	// SET overwrites any prior challenge for this email atomically.
	return s.rdb.Set(ctx, s.key(email), data, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, email string) (*Record, error) {
	data, err := s.rdb.Get(ctx, s.key(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding challenge record: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) IncrementAttempts(ctx context.Context, email string) (int, error) {
	const maxRetries = 4
	key := s.key(email)

	for i := 0; i < maxRetries; i++ {
		var attempts int

		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			var rec Record
			if err := json.Unmarshal(data, &rec); err != nil {
				return err
			}

			ttl := time.Until(time.Unix(rec.ExpiresAt, 0))
			if ttl <= 0 {
				_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrNotFound
			}

			rec.Attempts++
			attempts = rec.Attempts

			updated, err := json.Marshal(&rec)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			// Another verification attempt touched the record; retry.
			continue
		}
		if errors.Is(err, redis.Nil) {
			return 0, ErrNotFound
		}
		if err != nil {
			return 0, err
		}
		return attempts, nil
	}

	return 0, fmt.Errorf("incrementing attempts for %s: transaction contention", email)
}

func (s *RedisStore) Delete(ctx context.Context, email string) error {
	return s.rdb.Del(ctx, s.key(email)).Err()
}
