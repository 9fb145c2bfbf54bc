package dedupe

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"time"
)

// Locker is an atomic set-if-absent store with per-key expiry.
type Locker interface {
	// Acquire sets key if absent. It returns true when this caller won.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release drops key so the next Acquire wins. Missing keys are not an error.
	Release(ctx context.Context, key string) error
}

// DedupKey buckets an inbound message by identifier, text, and time window.
//
//	dedup:{identifier}:{sha1(text)}:{floor(tsMs/windowMs)}
func DedupKey(identifier, text string, tsMs, windowMs int64) string {
	if windowMs <= 0 {
		windowMs = 1
	}
	sum := sha1.Sum([]byte(text))
	bucket := tsMs / windowMs
	return "dedup:" + identifier + ":" + hex.EncodeToString(sum[:]) + ":" + strconv.FormatInt(bucket, 10)
}

// MessageLockKey is the consumer-side exclusive lock for one message.
func MessageLockKey(messageID string) string {
	return "lock:msg:" + messageID
}
