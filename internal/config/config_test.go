package config

import (
	"strings"
	"testing"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	// TEST_INT_MISSING is not set.
	v, err := envInt("TEST_INT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-integer value, got nil")
	}
	if got := err.Error(); got != `TEST_INT_BAD="abc" is not a valid integer` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvBoolValid(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	v, err := envBool("TEST_BOOL", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v {
		t.Fatal("expected true")
	}
}

func TestEnvBoolInvalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err := envBool("TEST_BOOL_BAD", false)
	if err == nil {
		t.Fatal("expected error for non-boolean value, got nil")
	}
	if got := err.Error(); got != `TEST_BOOL_BAD="maybe" is not a valid boolean` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvDurationValid(t *testing.T) {
	t.Setenv("TEST_DUR", "5s")
	v, err := envDuration("TEST_DUR", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Seconds() != 5 {
		t.Fatalf("expected 5s, got %s", v)
	}
}

func TestEnvDurationInvalid(t *testing.T) {
	t.Setenv("TEST_DUR_BAD", "five-seconds")
	_, err := envDuration("TEST_DUR_BAD", 0)
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if got := err.Error(); got != `TEST_DUR_BAD="five-seconds" is not a valid duration` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvFloatValid(t *testing.T) {
	t.Setenv("TEST_FLOAT", "0.25")
	v, err := envFloat("TEST_FLOAT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 0.25 {
		t.Fatalf("expected 0.25, got %g", v)
	}
}

func TestEnvFloatInvalid(t *testing.T) {
	t.Setenv("TEST_FLOAT_BAD", "lots")
	_, err := envFloat("TEST_FLOAT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-numeric value, got nil")
	}
	if got := err.Error(); got != `TEST_FLOAT_BAD="lots" is not a valid number` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestLoadFailsOnInvalidValue(t *testing.T) {
	t.Setenv("APURA_MAX_CONCURRENT_RUNS", "abc")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with invalid APURA_MAX_CONCURRENT_RUNS")
	}
	// Error should mention the variable name and value.
	if got := err.Error(); !strings.Contains(got, "APURA_MAX_CONCURRENT_RUNS") || !strings.Contains(got, "abc") {
		t.Fatalf("error should mention APURA_MAX_CONCURRENT_RUNS and value 'abc', got: %s", got)
	}
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	t.Setenv("APURA_MAX_CONCURRENT_RUNS", "abc")
	t.Setenv("APURA_NEWS_THRESHOLD", "xyz")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with multiple invalid vars")
	}
	got := err.Error()
	if !strings.Contains(got, "APURA_MAX_CONCURRENT_RUNS") {
		t.Fatalf("error should mention APURA_MAX_CONCURRENT_RUNS, got: %s", got)
	}
	if !strings.Contains(got, "APURA_NEWS_THRESHOLD") {
		t.Fatalf("error should mention APURA_NEWS_THRESHOLD, got: %s", got)
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	// With no env vars set, Load should succeed using all defaults.
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("expected default addr :8080, got %s", cfg.Addr)
	}
	if cfg.GuardBackend != "memory" {
		t.Fatalf("expected default guard backend memory, got %s", cfg.GuardBackend)
	}
	if cfg.NewsTopN != 3 {
		t.Fatalf("expected default news top N 3, got %d", cfg.NewsTopN)
	}
}

func TestValidateRejectsUnknownGuardBackend(t *testing.T) {
	t.Setenv("APURA_GUARD_BACKEND", "redis")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to reject unknown guard backend")
	}
	if got := err.Error(); !strings.Contains(got, "APURA_GUARD_BACKEND") {
		t.Fatalf("error should mention APURA_GUARD_BACKEND, got: %s", got)
	}
}

func TestValidateRejectsUnknownChatProvider(t *testing.T) {
	t.Setenv("APURA_LLM_PROVIDER", "bard")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to reject unknown chat provider")
	}
	if got := err.Error(); !strings.Contains(got, "APURA_LLM_PROVIDER") {
		t.Fatalf("error should mention APURA_LLM_PROVIDER, got: %s", got)
	}
}
