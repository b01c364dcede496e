package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedProfile is the ephemeral cache entry for a fetched profile. It is
// never authoritative: losing it costs an extra Graph API call, nothing else.
type CachedProfile struct {
	FirstName     *string   `json:"first_name,omitempty"`
	LastName      *string   `json:"last_name,omitempty"`
	ProfilePicURL *string   `json:"profile_pic_url,omitempty"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// Fields converts the cache entry back to profile fields
func (p *CachedProfile) Fields() ProfileFields {
	return ProfileFields{
		FirstName:     p.FirstName,
		LastName:      p.LastName,
		ProfilePicURL: p.ProfilePicURL,
	}
}

// ProfileCache stores the last fetched profile per (platform, scoped_id).
// A nil entry is a miss, never "known empty".
type ProfileCache interface {
	Get(ctx context.Context, platform, scopedID string) (*CachedProfile, error)
	Set(ctx context.Context, platform, scopedID string, profile CachedProfile) error
	Invalidate(ctx context.Context, platform, scopedID string) error
}

// RedisProfileCache implements ProfileCache on Redis. Entries are retained
// for TTL plus StaleWindow so a rate-limited refresh can still serve the
// stale value when the policy allows it; freshness is judged from
// FetchedAt, not from key expiry.
type RedisProfileCache struct {
	rc          *redis.Client
	prefix      string
	ttl         time.Duration
	staleWindow time.Duration
}

// NewRedisProfileCache creates a Redis-backed profile cache
func NewRedisProfileCache(rc *redis.Client, prefix string, ttl, staleWindow time.Duration) *RedisProfileCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisProfileCache{
		rc:          rc,
		prefix:      prefix,
		ttl:         ttl,
		staleWindow: staleWindow,
	}
}

func (c *RedisProfileCache) key(platform, scopedID string) string {
	return fmt.Sprintf("%sprofile:%s:%s", c.prefix, platform, scopedID)
}

// Get returns the cached profile or nil on miss
func (c *RedisProfileCache) Get(ctx context.Context, platform, scopedID string) (*CachedProfile, error) {
	bs, err := c.rc.Get(ctx, c.key(platform, scopedID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read profile cache: %w", err)
	}

	var profile CachedProfile
	if err := json.Unmarshal(bs, &profile); err != nil {
		// A corrupt entry is treated as a miss
		return nil, nil
	}

	return &profile, nil
}

// Set replaces the cached profile for the key
func (c *RedisProfileCache) Set(ctx context.Context, platform, scopedID string, profile CachedProfile) error {
	bs, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile cache entry: %w", err)
	}

	retention := c.ttl + c.staleWindow
	if err := c.rc.Set(ctx, c.key(platform, scopedID), bs, retention).Err(); err != nil {
		return fmt.Errorf("failed to write profile cache: %w", err)
	}

	return nil
}

// Invalidate drops the cached profile for the key
func (c *RedisProfileCache) Invalidate(ctx context.Context, platform, scopedID string) error {
	if err := c.rc.Del(ctx, c.key(platform, scopedID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate profile cache: %w", err)
	}
	return nil
}
