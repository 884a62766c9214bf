package bootstrap

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"

	appconfig "github.com/wolfman30/chatbot-proxy/internal/config"
	"github.com/wolfman30/chatbot-proxy/internal/session"
	"github.com/wolfman30/chatbot-proxy/pkg/logging"
)

func quietLogger() *logging.Logger {
	return logging.NewWithWriter("error", io.Discard)
}

func testConfig(baseURL string) *appconfig.Config {
	return &appconfig.Config{
		AppName:          "chatbot-proxy",
		CCaaSBaseURL:     baseURL,
		BotNameLiveChat:  "LC Bot",
		BotNameWhatsApp:  "WA Bot",
		AssistantBaseURL: "https://assistant.example.com",
		AssistantID:      "asst-1",
		SessionTimeout:   5 * time.Minute,
		TagDelay:         2 * time.Second,
		MetricsEnabled:   true,
	}
}

func botsServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ccaas/1/bots" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBuildBridgeResolvesBots(t *testing.T) {
	srv := botsServer(t, `{"bots":[{"id":"bot-lc","displayName":"LC Bot"}]}`)

	b, err := BuildBridge(context.Background(), testConfig(srv.URL), session.NewMemoryStore(), prometheus.NewRegistry(), quietLogger())
	if err != nil {
		t.Fatalf("build bridge: %v", err)
	}
	if b.Controller == nil || b.Sessions == nil || b.Metrics == nil {
		t.Fatalf("expected fully wired bridge, got %#v", b)
	}
	if got := b.Bots.AgentID("LIVECHAT"); got != "bot-lc" {
		t.Fatalf("expected resolved live chat bot, got %q", got)
	}
}

func TestBuildBridgeNoBotsIsStartupFailure(t *testing.T) {
	srv := botsServer(t, `{"bots":[{"id":"x","displayName":"Other"}]}`)

	_, err := BuildBridge(context.Background(), testConfig(srv.URL), session.NewMemoryStore(), prometheus.NewRegistry(), quietLogger())
	if !errors.Is(err, ErrStartup) {
		t.Fatalf("expected ErrStartup, got %v", err)
	}
}

func TestBuildBridgeRequiresStore(t *testing.T) {
	if _, err := BuildBridge(context.Background(), testConfig("http://127.0.0.1:1"), nil, nil, quietLogger()); err == nil {
		t.Fatalf("expected error without store")
	}
}

func TestBuildSessionStoreMemory(t *testing.T) {
	store, err := BuildSessionStore(context.Background(), &appconfig.Config{SessionStore: "memory"}, nil, quietLogger())
	if err != nil {
		t.Fatalf("build store: %v", err)
	}
	defer store.Close()
	if store.Backend != appconfig.SessionStoreMemory {
		t.Fatalf("unexpected backend %s", store.Backend)
	}
}

func TestBuildSessionStoreRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := BuildSessionStore(context.Background(), &appconfig.Config{SessionStore: "redis", RedisAddr: mr.Addr()}, nil, quietLogger())
	if err != nil {
		t.Fatalf("build store: %v", err)
	}
	defer store.Close()
	if store.Backend != appconfig.SessionStoreRedis {
		t.Fatalf("unexpected backend %s", store.Backend)
	}
}

func TestBuildSessionStoreErrors(t *testing.T) {
	cases := []*appconfig.Config{
		{SessionStore: "cassandra"},
		{SessionStore: "redis"},
		{SessionStore: "dynamodb", DynamoSessionsTable: "t"},
		{SessionStore: "postgres"},
	}
	for _, cfg := range cases {
		if _, err := BuildSessionStore(context.Background(), cfg, nil, quietLogger()); err == nil {
			t.Fatalf("expected error for %q", cfg.SessionStore)
		}
	}
}

func TestBuildRedisClientDisabled(t *testing.T) {
	if client := BuildRedisClient(context.Background(), &appconfig.Config{}, quietLogger(), false); client != nil {
		t.Fatalf("expected nil client without address")
	}
}
