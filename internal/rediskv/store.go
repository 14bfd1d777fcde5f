// Package rediskv stores slots in Redis and announces writes on a pub/sub channel,
// so every process sharing the server sees the same slots and change notifications.
package rediskv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/estatedesk/listingkeeper/internal/repository"
	"github.com/redis/go-redis/v9"
)

const (
	defaultNamespace = "listingkeeper"
	scanBatch        = 100
)

// Options configures a SlotStore.
type Options struct {
	Namespace  string
	QuotaBytes int64
}

// SlotStore implements repository.SlotStore and repository.ChangeNotifier on Redis.
type SlotStore struct {
	client     *redis.Client
	prefix     string
	channel    string
	quotaBytes int64
}

var (
	_ repository.SlotStore      = (*SlotStore)(nil)
	_ repository.ChangeNotifier = (*SlotStore)(nil)
)

// NewClient opens a Redis client for the given address.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// New creates a SlotStore on an existing client.
func New(client *redis.Client, opts Options) *SlotStore {
	ns := opts.Namespace
	if ns == "" {
		ns = defaultNamespace
	}
	return &SlotStore{
		client:     client,
		prefix:     ns + ":slot:",
		channel:    ns + ":changes",
		quotaBytes: opts.QuotaBytes,
	}
}

// Ping checks connectivity.
func (s *SlotStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Get returns the value stored under key.
func (s *SlotStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get slot %q: %w", key, err)
	}
	return value, nil
}

// Set writes the slot and publishes its key. The quota check and the write are
// separate commands, so concurrent writers may briefly overshoot the quota.
func (s *SlotStore) Set(ctx context.Context, key, value string) error {
	if s.quotaBytes > 0 {
		used, err := s.usage(ctx, key)
		if err != nil {
			return err
		}
		if used+int64(len(key))+int64(len(value)) > s.quotaBytes {
			return fmt.Errorf("slot %q needs %d bytes with %d of %d used: %w",
				key, len(key)+len(value), used, s.quotaBytes, repository.ErrQuotaExceeded)
		}
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.prefix+key, value, 0)
		pipe.Publish(ctx, s.channel, key)
		return nil
	})
	if err != nil {
		if isOutOfMemory(err) {
			return fmt.Errorf("set slot %q: %w", key, repository.ErrQuotaExceeded)
		}
		return fmt.Errorf("set slot %q: %w", key, err)
	}
	return nil
}

// Remove deletes the slot and publishes its key.
func (s *SlotStore) Remove(ctx context.Context, key string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.prefix+key)
		pipe.Publish(ctx, s.channel, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove slot %q: %w", key, err)
	}
	return nil
}

// Keys lists every slot key in lexical order.
func (s *SlotStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan slots: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Subscribe forwards the key of every slot written or removed through any SlotStore
// sharing the namespace.
func (s *SlotStore) Subscribe(ctx context.Context) (<-chan string, error) {
	pubsub := s.client.Subscribe(ctx, s.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", s.channel, err)
	}

	changes := make(chan string, 16)
	go func() {
		defer close(changes)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				select {
				case changes <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return changes, nil
}

func (s *SlotStore) usage(ctx context.Context, exclude string) (int64, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return 0, err
	}

	var used int64
	for _, key := range keys {
		if key == exclude {
			continue
		}
		n, err := s.client.StrLen(ctx, s.prefix+key).Result()
		if err != nil {
			return 0, fmt.Errorf("measure slot %q: %w", key, err)
		}
		used += int64(len(key)) + n
	}
	return used, nil
}

func isOutOfMemory(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "OOM")
}
