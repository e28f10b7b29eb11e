package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache is advisory key-value memoization for expensive pipeline steps.
// A miss or an expired entry must never change correctness, only latency and
// cost, so callers always fall through to the real computation on ErrMiss.
// Implementations must support concurrent readers and writers; last-writer-wins
// per key is acceptable.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Key builds a deterministic cache key from an operation kind and its
// normalized inputs. Inputs are sorted before hashing so map ordering and call
// sites cannot produce different keys for the same logical operation.
func Key(op string, inputs map[string]string) string {
	parts := make([]string, 0, len(inputs))
	for k, v := range inputs {
		parts = append(parts, k+"="+Normalize(v))
	}
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(op + "|" + strings.Join(parts, "&")))
	return op + ":" + hex.EncodeToString(sum[:])[:16]
}

// Normalize lowercases and collapses whitespace so trivially different
// spellings of the same query share a key.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// GetJSON fetches key and unmarshals the stored value into out.
func GetJSON(ctx context.Context, c Cache, key string, out any) error {
	if c == nil {
		return ErrMiss
	}
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// SetJSON marshals value and stores it under key. Serialization failures are
// returned to the caller but are safe to ignore: the cache is advisory.
func SetJSON(ctx context.Context, c Cache, key string, value any, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, ttl)
}
