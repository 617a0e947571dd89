// Package remote keeps record collections in Redis and pushes changes to
// every subscribed client.
//
// Each collection lives under four keys:
//
//	<prefix>:<collection>:seq      INCR counter for server-assigned ids
//	<prefix>:<collection>:items    hash id -> canonical JSON record
//	<prefix>:<collection>:order    sorted set of ids (bookings by date)
//	<prefix>:<collection>:changes  pub/sub channel, payload "op:id"
//
// Subscribers never apply individual change messages. A message only tells
// them to fetch a fresh snapshot, which replaces their in-memory view
// wholesale.
package remote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "cleanbook"

// Dial connects to the Redis server at redisURL and checks it is reachable.
func Dial(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

type keys struct {
	seq     string
	items   string
	order   string
	changes string
}

func newKeys(prefix, collection string) keys {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	base := prefix + ":" + collection + ":"
	return keys{
		seq:     base + "seq",
		items:   base + "items",
		order:   base + "order",
		changes: base + "changes",
	}
}

// isAuthError reports whether err is a credentials problem, which no
// amount of resubscribing will fix.
func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, prefix := range []string{"NOAUTH", "WRONGPASS", "NOPERM"} {
		if strings.Contains(msg, prefix) {
			return true
		}
	}
	return false
}
