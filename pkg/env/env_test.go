package env

import "testing"

func TestKey(t *testing.T) {
	if got := Key("log_format"); got != "EARNINGS_LOG_FORMAT" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestGetReadsPrefixedVariable(t *testing.T) {
	t.Setenv("EARNINGS_REGION", "eu")
	t.Setenv("REGION", "us")
	if got := Get("REGION", "none"); got != "eu" {
		t.Fatalf("expected prefixed value, got %q", got)
	}
}

func TestBlankFallsBack(t *testing.T) {
	t.Setenv("EARNINGS_REGION", "   ")
	if got := Get("REGION", "none"); got != "none" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("DYNO", "")
	if got := Raw("DYNO", "local"); got != "local" {
		t.Fatalf("expected fallback, got %q", got)
	}
}
