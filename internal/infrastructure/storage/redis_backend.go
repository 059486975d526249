package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultRedisChannel = "storefront:storage:events"
	defaultCloseTimeout = 5 * time.Second
)

// RedisBackend stores an origin's keys in Redis and propagates change events
// over Pub/Sub, so tabs served by different processes see each other's writes.
type RedisBackend struct {
	client     *redis.Client
	ownsClient bool
	origin     string
	keyPrefix  string
	channel    string
	hub        *ChangeHub
	logger     *zap.Logger

	mu        sync.Mutex
	cancelFn  context.CancelFunc
	doneCh    chan struct{}
	doneOnce  sync.Once
	isRunning bool
}

// RedisBackendOption configures a RedisBackend
type RedisBackendOption func(*RedisBackend)

// WithRedisChannel sets the Pub/Sub channel name
func WithRedisChannel(channel string) RedisBackendOption {
	return func(b *RedisBackend) {
		if channel != "" {
			b.channel = channel
		}
	}
}

// WithRedisLogger sets the logger
func WithRedisLogger(logger *zap.Logger) RedisBackendOption {
	return func(b *RedisBackend) {
		b.logger = logger
	}
}

// RedisOptions holds Redis connection settings
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisBackend connects to Redis and returns a backend owning the client
func NewRedisBackend(opts RedisOptions, origin string, options ...RedisBackendOption) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	b := NewRedisBackendWithClient(client, origin, options...)
	b.ownsClient = true
	return b, nil
}

// NewRedisBackendWithClient creates a backend over an existing client.
// The caller retains ownership of the client.
func NewRedisBackendWithClient(client *redis.Client, origin string, options ...RedisBackendOption) *RedisBackend {
	b := &RedisBackend{
		client:    client,
		origin:    origin,
		keyPrefix: "storefront:" + origin + ":",
		channel:   defaultRedisChannel,
		logger:    zap.NewNop(),
		doneCh:    make(chan struct{}),
	}
	for _, opt := range options {
		opt(b)
	}
	b.hub = NewChangeHub(b.logger)
	return b
}

func (b *RedisBackend) Origin() string {
	return b.origin
}

func (b *RedisBackend) Load(ctx context.Context, key string) ([]byte, error) {
	v, err := b.client.Get(ctx, b.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return v, nil
}

func (b *RedisBackend) Store(ctx context.Context, key string, value []byte) error {
	if err := b.client.Set(ctx, b.keyPrefix+key, value, 0).Err(); err != nil {
		if isRedisOOM(err) {
			return fmt.Errorf("failed to write %q: %w", key, ErrQuotaExceeded)
		}
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

// Publish sends the event to every process listening on the channel,
// including this one; local delivery happens in Run.
func (b *RedisBackend) Publish(ctx context.Context, event ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	return nil
}

func (b *RedisBackend) Subscribe(exclude string, buffer int) (*Subscription, error) {
	return b.hub.Subscribe(exclude, buffer)
}

// Run listens on the Pub/Sub channel and feeds local subscribers until ctx is
// cancelled or Close is called. It blocks; call it in a goroutine.
func (b *RedisBackend) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.isRunning {
		b.mu.Unlock()
		return fmt.Errorf("subscription already running")
	}
	b.isRunning = true
	subCtx, cancel := context.WithCancel(ctx)
	b.cancelFn = cancel
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.isRunning = false
		b.mu.Unlock()
		b.markDone()
	}()

	pubsub := b.client.Subscribe(subCtx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}
	b.logger.Info("Subscribed to storage change channel",
		zap.String("channel", b.channel),
		zap.String("origin", b.origin))

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			b.logger.Info("Storage change subscription stopped")
			return subCtx.Err()
		case msg, ok := <-ch:
			if !ok {
				b.logger.Warn("Storage change channel closed")
				return nil
			}
			var event ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("Failed to unmarshal storage change event", zap.Error(err))
				continue
			}
			if event.Origin != b.origin {
				continue
			}
			b.hub.Broadcast(event)
		}
	}
}

func (b *RedisBackend) markDone() {
	b.doneOnce.Do(func() {
		close(b.doneCh)
	})
}

// Close stops Run, closes local subscriptions and, when owned, the client
func (b *RedisBackend) Close() error {
	b.mu.Lock()
	cancelFn := b.cancelFn
	b.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
		select {
		case <-b.doneCh:
		case <-time.After(defaultCloseTimeout):
			b.logger.Warn("Timeout waiting for storage subscription to stop")
		}
	}
	b.hub.Close()

	if b.ownsClient {
		return b.client.Close()
	}
	return nil
}

// GetClient returns the underlying Redis client (for testing/monitoring)
func (b *RedisBackend) GetClient() *redis.Client {
	return b.client
}

func isRedisOOM(err error) bool {
	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		msg := redisErr.Error()
		return len(msg) >= 3 && msg[:3] == "OOM"
	}
	return false
}

var _ Backend = (*RedisBackend)(nil)
