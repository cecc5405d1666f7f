package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "sf-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "sf-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if !cfg.Pricing.TaxRate.IsZero() {
		t.Errorf("expected zero tax rate, got %s", cfg.Pricing.TaxRate)
	}
	if cfg.Checkout.AdvanceAmount != 199 {
		t.Errorf("expected default advance 199, got %d", cfg.Checkout.AdvanceAmount)
	}
	if !cfg.Payments.ReconcileAmount {
		t.Errorf("expected amount reconciliation enabled by default")
	}
	if cfg.Payments.Currency != defaultPaymentsCurrency {
		t.Errorf("expected default currency %s, got %s", defaultPaymentsCurrency, cfg.Payments.Currency)
	}
	if cfg.Orders.DefaultEntryStatus != "processing" {
		t.Errorf("expected default entry status processing, got %s", cfg.Orders.DefaultEntryStatus)
	}
	if cfg.Notifications.Workers != defaultNotificationWorkers || cfg.Notifications.QueueSize != defaultNotificationQueueSize {
		t.Errorf("unexpected notification defaults: %+v", cfg.Notifications)
	}
	if len(cfg.Events.KafkaBrokers) != 0 {
		t.Errorf("expected no kafka brokers, got %v", cfg.Events.KafkaBrokers)
	}
	if cfg.Redis.Addr != "" {
		t.Errorf("expected redis disabled by default, got %s", cfg.Redis.Addr)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Idempotency.TTL)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                  "9090",
		"API_SERVER_WRITE_TIMEOUT":         "25s",
		"API_FIREBASE_PROJECT_ID":          "sf-prod",
		"API_FIRESTORE_PROJECT_ID":         "sf-fire",
		"API_PAYMENTS_STRIPE_API_KEY":      "secret://stripe/api",
		"API_PAYMENTS_SIGNING_SECRET":      "secret://payments/signing",
		"API_PAYMENTS_CURRENCY":            "usd",
		"API_PAYMENTS_RECONCILE_AMOUNT":    "false",
		"API_PAYMENTS_TIMEOUT":             "3s",
		"API_PRICING_TAX_RATE":             "0.10",
		"API_CHECKOUT_ADVANCE_AMOUNT":      "2.50",
		"API_CHECKOUT_LOCK_TTL":            "45s",
		"API_ORDERS_DEFAULT_ENTRY_STATUS":  "Pending",
		"API_NOTIFICATIONS_TOPIC":          "order-notifications",
		"API_NOTIFICATIONS_WORKERS":        "8",
		"API_EVENTS_KAFKA_BROKERS":         "kafka-1:9092, kafka-2:9092",
		"API_EVENTS_TOPIC":                 "orders.v1",
		"API_REDIS_ADDR":                   "redis:6379",
		"API_REDIS_PASSWORD":               "sm://redis/password",
		"API_IDEMPOTENCY_HEADER":           "X-Idem-Key",
		"API_IDEMPOTENCY_CLEANUP_INTERVAL": "30m",
	}

	secrets := map[string]string{
		"secret://stripe/api":       "stripe-key",
		"secret://payments/signing": "signing-secret",
		"secret://redis/password":   "redis-pass",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.WriteTimeout != 25*time.Second {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Firestore.ProjectID != "sf-fire" {
		t.Errorf("expected explicit firestore project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Payments.StripeAPIKey != "stripe-key" || cfg.Payments.SigningSecret != "signing-secret" {
		t.Errorf("expected resolved payment secrets, got %+v", cfg.Payments)
	}
	if cfg.Payments.SigningSecretRef != "secret://payments/signing" {
		t.Errorf("expected signing secret ref to be kept, got %q", cfg.Payments.SigningSecretRef)
	}
	if cfg.Payments.Currency != "USD" || cfg.Payments.ReconcileAmount || cfg.Payments.Timeout != 3*time.Second {
		t.Errorf("unexpected payments config %+v", cfg.Payments)
	}
	if cfg.Pricing.TaxRate.String() != "0.1" {
		t.Errorf("expected tax rate 0.1, got %s", cfg.Pricing.TaxRate)
	}
	if cfg.Checkout.AdvanceAmount != 250 {
		t.Errorf("expected advance 250 minor units, got %d", cfg.Checkout.AdvanceAmount)
	}
	if cfg.Checkout.LockTTL != 45*time.Second {
		t.Errorf("unexpected lock ttl %s", cfg.Checkout.LockTTL)
	}
	if cfg.Orders.DefaultEntryStatus != "pending" {
		t.Errorf("expected lower-cased entry status, got %s", cfg.Orders.DefaultEntryStatus)
	}
	if cfg.Notifications.Topic != "order-notifications" || cfg.Notifications.Workers != 8 {
		t.Errorf("unexpected notifications config %+v", cfg.Notifications)
	}
	if !slices.Equal(cfg.Events.KafkaBrokers, []string{"kafka-1:9092", "kafka-2:9092"}) || cfg.Events.Topic != "orders.v1" {
		t.Errorf("unexpected events config %+v", cfg.Events)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.Password != "redis-pass" {
		t.Errorf("unexpected redis config %+v", cfg.Redis)
	}
	if cfg.Idempotency.Header != "X-Idem-Key" || cfg.Idempotency.CleanupInterval != 30*time.Minute {
		t.Errorf("unexpected idempotency config %+v", cfg.Idempotency)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nexport API_FIREBASE_PROJECT_ID=\"sf-dot\"\n# comment\nAPI_PRICING_TAX_RATE=0.08\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "sf-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
	if cfg.Pricing.TaxRate.String() != "0.08" {
		t.Errorf("expected tax rate from dotenv, got %s", cfg.Pricing.TaxRate)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if !slices.Contains(validation.Fields(), "Firebase.ProjectID") {
		t.Fatalf("expected Firebase.ProjectID in %v", validation.Fields())
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID":         "sf-dev",
		"API_PRICING_TAX_RATE":            "ten percent",
		"API_CHECKOUT_ADVANCE_AMOUNT":     "-5",
		"API_ORDERS_DEFAULT_ENTRY_STATUS": "confirmed",
		"API_PAYMENTS_CURRENCY":           "yen",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := validation.Fields()
	for _, want := range []string{"Pricing.TaxRate", "Checkout.AdvanceAmount", "Orders.DefaultEntryStatus", "Payments.Currency"} {
		if !slices.Contains(fields, want) {
			t.Errorf("expected %s in %v", want, fields)
		}
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID":     "sf-dev",
		"API_PAYMENTS_STRIPE_API_KEY": "secret://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	overrides := map[string]string{
		"API_FIREBASE_PROJECT_ID": "override-project",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "sf-dev",
	}

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Payments.SigningSecret"),
	)
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %v", err)
	}
	expectedRedacted := redactSecretName("Payments.SigningSecret")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "sf-dev",
	}

	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic when required secrets missing")
		}
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if len(missing.Names()) != 1 || missing.Names()[0] != "Payments.SigningSecret" {
			t.Fatalf("unexpected missing secrets %v", missing.Names())
		}
	}()

	Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Payments.SigningSecret"),
		WithPanicOnMissingSecrets(),
	)
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID":     "sf-dev",
		"API_PAYMENTS_SIGNING_SECRET": "sm://payments/signing",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref == "secret://payments/signing" {
			return "legacy-secret", nil
		}
		return "", &SecretError{Ref: ref, Err: errors.New("not found")}
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Payments.SigningSecret != "legacy-secret" {
		t.Fatalf("expected legacy secret, got %s", cfg.Payments.SigningSecret)
	}
	if cfg.Payments.SigningSecretRef != "secret://payments/signing" {
		t.Fatalf("expected normalised signing secret ref, got %q", cfg.Payments.SigningSecretRef)
	}
}

func TestLoadInlineSigningSecretHasNoRef(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID":     "sf-dev",
		"API_PAYMENTS_SIGNING_SECRET": "inline-secret",
	}
	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Payments.SigningSecret != "inline-secret" || cfg.Payments.SigningSecretRef != "" {
		t.Fatalf("unexpected payments config %+v", cfg.Payments)
	}
}

func TestLoadCheckoutRateLimit(t *testing.T) {
	base := map[string]string{"API_FIREBASE_PROJECT_ID": "sf-dev"}

	cfg, err := Load(context.Background(), WithEnvMap(base), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Checkout.RateLimit != defaultCheckoutRateLimit || cfg.Checkout.RateWindow != defaultCheckoutRateWindow {
		t.Fatalf("unexpected rate defaults %+v", cfg.Checkout)
	}

	disabled := map[string]string{"API_FIREBASE_PROJECT_ID": "sf-dev", "API_CHECKOUT_RATE_LIMIT": "0", "API_CHECKOUT_RATE_WINDOW": "0s"}
	cfg, err = Load(context.Background(), WithEnvMap(disabled), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("zero limit should disable throttling, got %v", err)
	}
	if cfg.Checkout.RateLimit != 0 {
		t.Fatalf("expected disabled rate limit, got %d", cfg.Checkout.RateLimit)
	}

	invalid := map[string]string{"API_FIREBASE_PROJECT_ID": "sf-dev", "API_CHECKOUT_RATE_LIMIT": "-1"}
	_, err = Load(context.Background(), WithEnvMap(invalid), WithoutSystemEnv(), WithEnvFile(""))
	var verr *ValidationError
	if !errors.As(err, &verr) || !slices.Contains(verr.Fields(), "Checkout.RateLimit") {
		t.Fatalf("expected Checkout.RateLimit validation error, got %v", err)
	}
}
