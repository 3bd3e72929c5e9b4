// Package fabric provides the shared coordination store implementations:
// redis for production fleets, an in-process map for single-node runs
// and tests.
package fabric

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/inkboard/inkboard/internal/core"
)

type RedisFabric struct {
	rdb *redis.Client
}

func NewRedis(addr, password string, db int) (*RedisFabric, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisFabric{rdb: rdb}, nil
}

func (f *RedisFabric) Get(ctx context.Context, key string) (string, error) {
	v, err := f.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", core.ErrNotFound
	}
	return v, err
}

func (f *RedisFabric) Set(ctx context.Context, key, value string) error {
	return f.rdb.Set(ctx, key, value, 0).Err()
}

func (f *RedisFabric) Delete(ctx context.Context, key string) error {
	return f.rdb.Del(ctx, key).Err()
}

func (f *RedisFabric) Incr(ctx context.Context, key string) (int64, error) {
	return f.rdb.Incr(ctx, key).Result()
}

func (f *RedisFabric) SetAdd(ctx context.Context, key, member string) error {
	return f.rdb.SAdd(ctx, key, member).Err()
}

func (f *RedisFabric) SetRemove(ctx context.Context, key, member string) error {
	return f.rdb.SRem(ctx, key, member).Err()
}

func (f *RedisFabric) SetMembers(ctx context.Context, key string) ([]string, error) {
	return f.rdb.SMembers(ctx, key).Result()
}

func (f *RedisFabric) SetContains(ctx context.Context, key, member string) (bool, error) {
	return f.rdb.SIsMember(ctx, key, member).Result()
}

func (f *RedisFabric) Publish(ctx context.Context, channel string, payload []byte) error {
	return f.rdb.Publish(ctx, channel, payload).Err()
}

func (f *RedisFabric) Subscribe(ctx context.Context, channel string) (core.Subscription, error) {
	ps := f.rdb.Subscribe(ctx, channel)
	// Force the SUBSCRIBE round-trip so a bad connection fails here,
	// not on the first missed message.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", channel, err)
	}

	sub := &redisSubscription{ps: ps, out: make(chan core.Message, 64)}
	go sub.pump(ctx)
	return sub, nil
}

func (f *RedisFabric) Close() error { return f.rdb.Close() }

type redisSubscription struct {
	ps  *redis.PubSub
	out chan core.Message
}

func (s *redisSubscription) pump(ctx context.Context) {
	defer close(s.out)
	ch := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			select {
			case s.out <- core.Message{Channel: m.Channel, Payload: []byte(m.Payload)}:
			default:
				log.Warn().Str("module", "fabric.redis").Str("channel", m.Channel).Msg("subscriber lagging, message dropped")
			}
		}
	}
}

func (s *redisSubscription) Messages() <-chan core.Message { return s.out }

func (s *redisSubscription) Close() error { return s.ps.Close() }
