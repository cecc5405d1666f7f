package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultSecretTTL = 5 * time.Minute

// ErrSigningSecretUnavailable is returned when the shared secret cannot be loaded.
var ErrSigningSecretUnavailable = errors.New("payments: signing secret unavailable")

// Sign returns the hex-encoded HMAC-SHA256 of orderRef + "|" + paymentRef.
func Sign(orderRef, paymentRef string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(orderRef + "|" + paymentRef))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is exactly the expected signature for the pair. The comparison
// runs in constant time. Signatures are matched case-sensitively as lower-case hex.
func Verify(orderRef, paymentRef, signature string, secret []byte) bool {
	if len(secret) == 0 || signature == "" {
		return false
	}
	expected := Sign(orderRef, paymentRef, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SecretProvider loads secret material by reference. secrets.Fetcher satisfies it.
type SecretProvider interface {
	GetSecret(ctx context.Context, ref string) ([]byte, error)
}

// StaticSecret serves a fixed secret regardless of the reference.
type StaticSecret []byte

// GetSecret implements SecretProvider.
func (s StaticSecret) GetSecret(context.Context, string) ([]byte, error) {
	if len(s) == 0 {
		return nil, errors.New("payments: static secret is empty")
	}
	return append([]byte(nil), s...), nil
}

// SignatureVerifier checks payment evidence against the shared secret, refreshing the cached
// secret after ttl so rotated secrets are picked up without a restart.
type SignatureVerifier struct {
	secrets SecretProvider
	ref     string
	ttl     time.Duration
	now     func() time.Time

	mu       sync.Mutex
	secret   []byte
	loadedAt time.Time
}

// VerifierOption customises a SignatureVerifier.
type VerifierOption func(*SignatureVerifier)

// WithSecretTTL overrides how long a loaded secret is reused.
func WithSecretTTL(ttl time.Duration) VerifierOption {
	return func(v *SignatureVerifier) {
		if ttl > 0 {
			v.ttl = ttl
		}
	}
}

// WithVerifierClock injects a clock for tests.
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *SignatureVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewSignatureVerifier builds a verifier resolving ref through secrets.
func NewSignatureVerifier(secrets SecretProvider, ref string, opts ...VerifierOption) (*SignatureVerifier, error) {
	if secrets == nil {
		return nil, errors.New("payments: secret provider is required")
	}
	v := &SignatureVerifier{
		secrets: secrets,
		ref:     strings.TrimSpace(ref),
		ttl:     defaultSecretTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// VerifyEvidence reports whether the evidence carries a valid signature. An error is returned only
// when the secret cannot be loaded.
func (v *SignatureVerifier) VerifyEvidence(ctx context.Context, orderRef, paymentRef, signature string) (bool, error) {
	secret, err := v.load(ctx)
	if err != nil {
		return false, err
	}
	return Verify(orderRef, paymentRef, signature, secret), nil
}

func (v *SignatureVerifier) load(ctx context.Context) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	if len(v.secret) > 0 && now.Sub(v.loadedAt) < v.ttl {
		return v.secret, nil
	}
	secret, err := v.secrets.GetSecret(ctx, v.ref)
	if err != nil {
		if len(v.secret) > 0 {
			// keep serving the last good secret while the store is unreachable
			return v.secret, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrSigningSecretUnavailable, err)
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: empty secret", ErrSigningSecretUnavailable)
	}
	v.secret = secret
	v.loadedAt = now
	return secret, nil
}
