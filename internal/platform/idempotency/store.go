// Package idempotency replays stored responses for retried mutating requests carrying an
// Idempotency-Key header, so a client retrying a checkout never places a second order.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long completed records are retained.
const DefaultTTL = 24 * time.Hour

// State describes the outcome of reserving a key.
type State int

const (
	// StateNew means the caller owns the key and must run the request.
	StateNew State = iota
	// StateCompleted means a stored response exists and must be replayed.
	StateCompleted
	// StateInFlight means another request currently owns the key.
	StateInFlight
)

// Record is the persisted state for one scoped key.
type Record struct {
	Fingerprint string
	Completed   bool
	Status      int
	Header      http.Header
	Body        []byte
	ExpiresAt   time.Time
}

// Response is the captured handler output.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Store persists reservations and completed responses.
type Store interface {
	Reserve(ctx context.Context, id, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error)
	Complete(ctx context.Context, id, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, id string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key reused with a different request")

// recordID scopes a client key to the caller so keys never collide across users.
func recordID(key, owner string) string {
	return sha256Hex([]byte(strings.TrimSpace(owner) + "|" + strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// replayableHeader filters hop-by-hop and per-response headers out of stored responses.
func replayableHeader(header http.Header) http.Header {
	out := make(http.Header, len(header))
	for name, values := range header {
		switch http.CanonicalHeaderKey(name) {
		case "Content-Length", "Date", "Connection", "Transfer-Encoding", "X-Cloud-Trace-Context":
			continue
		}
		out[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	return out
}

func newPending(fingerprint string, now time.Time, ttl time.Duration) Record {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return Record{Fingerprint: fingerprint, ExpiresAt: now.Add(ttl)}
}

func classify(existing Record, fingerprint string, now time.Time) (State, error) {
	if !existing.ExpiresAt.IsZero() && !now.Before(existing.ExpiresAt) {
		return StateNew, nil
	}
	if existing.Fingerprint != fingerprint {
		return 0, ErrFingerprintMismatch
	}
	if existing.Completed {
		return StateCompleted, nil
	}
	return StateInFlight, nil
}
