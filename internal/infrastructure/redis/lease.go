package redisinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/go-verify-nosql/internal/pkg/id"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "verify:session:"

// releaseScript deletes the key only if it still holds our token, so an
// expired lease taken over by another instance is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewClient parses url and pings the server.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Leaser hands out per-record leases so only one instance reconciles a
// record at a time.
type Leaser struct {
	client *redis.Client
}

func NewLeaser(client *redis.Client) *Leaser {
	return &Leaser{client: client}
}

// Acquire takes the lease for recordID. ok is false when another holder has
// it. The returned release func is safe to call once the work is done.
func (l *Leaser) Acquire(ctx context.Context, recordID string, ttl time.Duration) (release func(context.Context) error, ok bool, err error) {
	key := keyPrefix + recordID
	token := id.New()
	ok, err = l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lease %s: %w", recordID, err)
	}
	if !ok {
		return nil, false, nil
	}
	release = func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}
	return release, true, nil
}
