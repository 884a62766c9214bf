package router

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/chatbot-proxy/internal/ccaas"
	"github.com/wolfman30/chatbot-proxy/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/chatbot-proxy/internal/http/middleware"
	"github.com/wolfman30/chatbot-proxy/pkg/logging"
)

type countingDispatcher struct {
	mu    sync.Mutex
	count int
}

func (c *countingDispatcher) Dispatch(context.Context, ccaas.InboundMessage) {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

func newTestRouter(t *testing.T) (http.Handler, *countingDispatcher) {
	t.Helper()

	logger := logging.NewWithWriter("error", io.Discard)
	d := &countingDispatcher{}
	reg := prometheus.NewRegistry()
	cfg := &Config{
		Logger:         logger,
		CCaaSWebhook:   handlers.NewCCaaSWebhookHandler("chatbot-proxy", d, logger),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	return New(cfg), d
}

func TestRouterHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterWebhookEndpoints(t *testing.T) {
	router, d := newTestRouter(t)
	body := `{"conversationId":"conv-1","channel":"WHATSAPP","from":"a","to":"b","content":{"text":"hi"}}`

	for _, path := range []string{"/", "/webhooks/ccaas"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rr.Code)
		}
		if rr.Body.Len() != 0 {
			t.Fatalf("%s: expected empty body, got %q", path, rr.Body.String())
		}
		if rr.Header().Get(httpmiddleware.FlowIDHeader) == "" {
			t.Fatalf("%s: expected flow id header", path)
		}
	}
	if d.count != 2 {
		t.Fatalf("expected 2 dispatched events, got %d", d.count)
	}
}

func TestRouterStatusPage(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `this is "chatbot-proxy"`) {
		t.Fatalf("unexpected status body %q", rr.Body.String())
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRouterWebhookRateLimit(t *testing.T) {
	logger := logging.NewWithWriter("error", io.Discard)
	d := &countingDispatcher{}
	router := New(&Config{
		CCaaSWebhook:     handlers.NewCCaaSWebhookHandler("chatbot-proxy", d, logger),
		WebhookRateLimit: 1,
		WebhookRateBurst: 1,
	})
	body := `{"conversationId":"conv-1","content":{"text":"hi"}}`

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status codes %v", codes)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("health must not be rate limited, got %d", rr.Code)
	}
}
