// Package redisrelay implements relay.Relay on Redis Streams, letting
// horizontally scaled server instances forward action messages to whichever
// instance holds the target session's client proxies.
package redisrelay

import (
	"context"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/glspkit/glsp-server-go/relay"
)

// Config for the Redis-backed relay. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: RELAY_KEY_PREFIX
	KeyPrefix string `env:"RELAY_KEY_PREFIX,default=glsp:relay:"`
	// MaxLen bounds each session stream (approximate trim). ENV: RELAY_STREAM_MAXLEN
	MaxLen int64 `env:"RELAY_STREAM_MAXLEN,default=1024"`
}

// Relay implements relay.Relay using one Redis stream per session topic.
type Relay struct {
	client    *redis.Client
	keyPrefix string
	maxLen    int64
}

// New builds a relay from cfg, verifying connectivity with a ping.
func New(cfg Config) (*Relay, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "glsp:relay:"
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 1024
	}
	return &Relay{client: cl, keyPrefix: prefix, maxLen: maxLen}, nil
}

// NewFromEnv builds a Relay using envdecode to populate Config.
func NewFromEnv() (*Relay, error) {
	var cfg Config
	// Defaults are provided via struct tags.
	_ = envdecode.Decode(&cfg)
	return New(cfg)
}

// Close closes the Redis client.
func (r *Relay) Close() error { return r.client.Close() }

func (r *Relay) streamKey(sessionID string) string { return r.keyPrefix + "stream:" + sessionID }

// Publish implements relay.Relay.
func (r *Relay) Publish(ctx context.Context, sessionID string, data []byte) (string, error) {
	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.streamKey(sessionID),
		MaxLen: r.maxLen,
		Approx: true,
		Values: map[string]interface{}{"d": data},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %q: %w", sessionID, err)
	}
	return id, nil
}

// Subscribe implements relay.Relay.
func (r *Relay) Subscribe(ctx context.Context, sessionID string, lastEventID string, handler relay.HandlerFunc) error {
	key := r.streamKey(sessionID)
	start := lastEventID
	if start == "" {
		start = "$" // next published message
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		res, err := r.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{key, start},
			Count:   16,
			Block:   500 * time.Millisecond,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if len(res) == 0 {
			continue
		}
		for _, m := range res[0].Messages {
			start = m.ID
			var payload []byte
			switch v := m.Values["d"].(type) {
			case string:
				payload = []byte(v)
			case []byte:
				payload = v
			default:
				payload = []byte(fmt.Sprintf("%v", v))
			}
			if err := handler(ctx, m.ID, payload); err != nil {
				return err
			}
		}
	}
}

// Cleanup implements relay.Relay.
func (r *Relay) Cleanup(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, r.streamKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("del %q: %w", sessionID, err)
	}
	return nil
}

var _ relay.Relay = (*Relay)(nil)
