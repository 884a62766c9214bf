package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("SESSION_TIMEOUT", "")
	t.Setenv("SESSION_STORE", "")
	t.Setenv("CCAAS_TAG_DELAY", "")
	t.Setenv("DEBUG_ROUTING", "")
	cfg := Load()
	if cfg.Port != "3000" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.SessionTimeout != 5*time.Minute {
		t.Fatalf("expected default session timeout, got %s", cfg.SessionTimeout)
	}
	if cfg.SessionStore != SessionStoreMemory {
		t.Fatalf("expected memory session store by default, got %s", cfg.SessionStore)
	}
	if cfg.TagDelay != 2*time.Second {
		t.Fatalf("expected 2s tag delay, got %s", cfg.TagDelay)
	}
	if cfg.RoutingTag != "routingInfo" {
		t.Fatalf("expected routingInfo tag, got %s", cfg.RoutingTag)
	}
	if cfg.LoopTestToken != "LOOPTEST" {
		t.Fatalf("expected LOOPTEST token, got %s", cfg.LoopTestToken)
	}
	if cfg.DebugRouting {
		t.Fatalf("expected debug routing disabled by default")
	}
	if cfg.NeedsAWS() {
		t.Fatalf("memory store without SSM should not need AWS")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CCAAS_BASE_URL", "https://api.example.com/")
	t.Setenv("CCAAS_SHARED_KEYWORD", " ACME ")
	t.Setenv("SESSION_TIMEOUT", "300")
	t.Setenv("SESSION_STORE", "DynamoDB")
	t.Setenv("DEBUG_ROUTING", "true")
	t.Setenv("DEBUG_WEBHOOK_URL", "https://inspect.example.com/abc/")
	t.Setenv("CCAAS_TAG_DELAY", "500ms")
	cfg := Load()
	if cfg.Addr() != "0.0.0.0:9090" {
		t.Fatalf("unexpected addr %s", cfg.Addr())
	}
	if cfg.CCaaSBaseURL != "https://api.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.CCaaSBaseURL)
	}
	if cfg.SharedKeyword != "ACME" {
		t.Fatalf("expected trimmed keyword, got %q", cfg.SharedKeyword)
	}
	if cfg.SessionTimeout != 300*time.Second {
		t.Fatalf("expected bare seconds to parse, got %s", cfg.SessionTimeout)
	}
	if cfg.SessionStore != SessionStoreDynamoDB {
		t.Fatalf("expected dynamodb store, got %s", cfg.SessionStore)
	}
	if !cfg.NeedsAWS() {
		t.Fatalf("dynamodb store should need AWS")
	}
	if !cfg.DebugRouting || cfg.DebugWebhookURL != "https://inspect.example.com/abc" {
		t.Fatalf("unexpected debug routing %v %s", cfg.DebugRouting, cfg.DebugWebhookURL)
	}
	if cfg.TagDelay != 500*time.Millisecond {
		t.Fatalf("expected tag delay override, got %s", cfg.TagDelay)
	}
}

func TestGetEnvAsDurationInvalid(t *testing.T) {
	t.Setenv("EVENT_TIMEOUT", "soon")
	cfg := Load()
	if cfg.EventTimeout != 2*time.Minute {
		t.Fatalf("expected fallback event timeout, got %s", cfg.EventTimeout)
	}
}

func TestLoadWebhookRateLimit(t *testing.T) {
	t.Setenv("WEBHOOK_RATE_LIMIT", "2.5")
	t.Setenv("WEBHOOK_RATE_BURST", "")
	cfg := Load()
	if cfg.WebhookRateLimit != 2.5 {
		t.Fatalf("expected 2.5 rps, got %v", cfg.WebhookRateLimit)
	}
	if cfg.WebhookRateBurst != 20 {
		t.Fatalf("expected default burst, got %d", cfg.WebhookRateBurst)
	}
}
