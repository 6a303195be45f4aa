// Package revocation is the single source of truth for "is this credential
// still usable": a TTL-bound key-value store holding denylisted tokens and
// active sessions.
package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Store records invalidated tokens and active sessions. Read errors must be
// surfaced to callers: the mandatory auth gateway fails closed on them.
type Store interface {
	Denylist(ctx context.Context, token string, ttl time.Duration) error
	IsDenied(ctx context.Context, token string) (bool, error)

	CreateSession(ctx context.Context, id string, payload map[string]any, ttl time.Duration) error
	TouchSession(ctx context.Context, id string, ttl time.Duration) error
	SessionExists(ctx context.Context, id string) (bool, error)
	DeleteSession(ctx context.Context, id string) error
}

// Keys are hashed so arbitrarily long raw tokens stay within key-size limits.
func denyKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "denylist:" + hex.EncodeToString(sum[:])
}

func sessionKey(id string) string {
	return "session:" + id
}

func ttlSeconds(ttl time.Duration) int64 {
	secs := int64(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
