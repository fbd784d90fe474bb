// Package server mirrors registry mutations into Redis so sibling processes
// and the REST API can read user liveness without a socket connection.
package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix = "presence:"
	// Presence keys expire on their own so a crashed relay process cannot
	// leave users permanently "online"; the hub refreshes them while the
	// connection is alive.
	presenceTTL = 60 * time.Second

	mirrorOpTimeout = 5 * time.Second
)

// NewRedisClient connects to Redis from a URL and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("error pinging redis: %w", err)
	}

	return client, nil
}

// PresenceStore is the subset of Redis commands the mirror issues.
// *redis.Client satisfies it; tests substitute a fake.
type PresenceStore interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// PresenceMirror publishes the local online set to Redis as TTL'd keys.
// It is advisory: routing always uses the in-process registry, and mirror
// failures are logged but never fail a connect or disconnect.
type PresenceMirror struct {
	store PresenceStore
}

// NewPresenceMirror wraps an established presence store, usually a Redis
// client.
func NewPresenceMirror(store PresenceStore) *PresenceMirror {
	return &PresenceMirror{store: store}
}

// SetOnline records that userID is connected through connID.
func (m *PresenceMirror) SetOnline(ctx context.Context, userID, connID string) {
	ctx, cancel := context.WithTimeout(ctx, mirrorOpTimeout)
	defer cancel()

	if err := m.store.Set(ctx, presenceKey(userID), connID, presenceTTL).Err(); err != nil {
		log.Printf("Presence mirror: failed to mark %s online: %v", userID, err)
	}
}

// SetOffline removes the presence key for userID.
func (m *PresenceMirror) SetOffline(ctx context.Context, userID string) {
	ctx, cancel := context.WithTimeout(ctx, mirrorOpTimeout)
	defer cancel()

	if err := m.store.Del(ctx, presenceKey(userID)).Err(); err != nil {
		log.Printf("Presence mirror: failed to mark %s offline: %v", userID, err)
	}
}

// Refresh extends the TTL of every key in the current online set.
func (m *PresenceMirror) Refresh(ctx context.Context, userIDs []string) {
	if len(userIDs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, mirrorOpTimeout)
	defer cancel()

	for _, userID := range userIDs {
		if err := m.store.Expire(ctx, presenceKey(userID), presenceTTL).Err(); err != nil {
			log.Printf("Presence mirror: failed to refresh %s: %v", userID, err)
		}
	}
}

func presenceKey(userID string) string {
	return presenceKeyPrefix + userID
}
