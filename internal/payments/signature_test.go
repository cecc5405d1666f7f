package payments

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestVerifyExactMatchOnly(t *testing.T) {
	secret := []byte("whsec_test")
	sig := Sign("pi_123", "ch_456", secret)

	if !Verify("pi_123", "ch_456", sig, secret) {
		t.Fatalf("expected signature to verify")
	}

	cases := map[string][3]string{
		"order ref changed":   {"pi_124", "ch_456", sig},
		"payment ref changed": {"pi_123", "ch_457", sig},
		"truncated":           {"pi_123", "ch_456", sig[:len(sig)-1]},
		"empty":               {"pi_123", "ch_456", ""},
		"separator shift":     {"pi_123|ch", "_456", sig},
	}
	for name, tc := range cases {
		if Verify(tc[0], tc[1], tc[2], secret) {
			t.Fatalf("%s: expected verification failure", name)
		}
	}
	if Verify("pi_123", "ch_456", sig, []byte("other")) {
		t.Fatalf("expected failure with different secret")
	}
}

func TestVerifySingleBitMutationFails(t *testing.T) {
	secret := []byte("whsec_test")
	sig := []byte(Sign("order", "payment", secret))
	for i := range sig {
		mutated := append([]byte(nil), sig...)
		mutated[i] ^= 0x01
		if Verify("order", "payment", string(mutated), secret) {
			t.Fatalf("mutation at byte %d verified", i)
		}
	}
}

type countingSecrets struct {
	calls  int
	secret []byte
	err    error
}

func (c *countingSecrets) GetSecret(context.Context, string) ([]byte, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.secret, nil
}

func TestSignatureVerifierCachesAndRefreshes(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &countingSecrets{secret: []byte("s1")}
	v, err := NewSignatureVerifier(store, "secret://payments-signing", WithSecretTTL(time.Minute), WithVerifierClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewSignatureVerifier: %v", err)
	}
	ctx := context.Background()

	ok, err := v.VerifyEvidence(ctx, "a", "b", Sign("a", "b", []byte("s1")))
	if err != nil || !ok {
		t.Fatalf("expected valid evidence, got %v %v", ok, err)
	}
	_, _ = v.VerifyEvidence(ctx, "a", "b", "x")
	if store.calls != 1 {
		t.Fatalf("expected cached secret, got %d loads", store.calls)
	}

	now = now.Add(2 * time.Minute)
	store.secret = []byte("s2")
	ok, _ = v.VerifyEvidence(ctx, "a", "b", Sign("a", "b", []byte("s2")))
	if !ok || store.calls != 2 {
		t.Fatalf("expected refreshed secret, ok=%v calls=%d", ok, store.calls)
	}

	now = now.Add(2 * time.Minute)
	store.err = errors.New("unavailable")
	ok, err = v.VerifyEvidence(ctx, "a", "b", Sign("a", "b", []byte("s2")))
	if err != nil || !ok {
		t.Fatalf("expected last good secret to be served, got %v %v", ok, err)
	}
}

func TestSignatureVerifierSecretUnavailable(t *testing.T) {
	v, err := NewSignatureVerifier(&countingSecrets{err: errors.New("denied")}, "secret://x")
	if err != nil {
		t.Fatalf("NewSignatureVerifier: %v", err)
	}
	_, err = v.VerifyEvidence(context.Background(), "a", "b", "c")
	if !errors.Is(err, ErrSigningSecretUnavailable) {
		t.Fatalf("expected ErrSigningSecretUnavailable, got %v", err)
	}

	static, _ := NewSignatureVerifier(StaticSecret("k"), "")
	ok, err := static.VerifyEvidence(context.Background(), "a", "b", Sign("a", "b", []byte("k")))
	if err != nil || !ok {
		t.Fatalf("static secret: %v %v", ok, err)
	}
}
