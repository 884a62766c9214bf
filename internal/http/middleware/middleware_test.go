package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wolfman30/chatbot-proxy/internal/flow"
	"github.com/wolfman30/chatbot-proxy/pkg/logging"
)

func TestFlowIDStoredInContextAndHeader(t *testing.T) {
	var seen string
	handler := FlowID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := flow.IDFromContext(r.Context())
		if !ok {
			t.Errorf("expected flow id in context")
		}
		seen = id
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))

	if seen == "" || rr.Header().Get(FlowIDHeader) != seen {
		t.Fatalf("expected header %q to match context id %q", rr.Header().Get(FlowIDHeader), seen)
	}
}

func TestRequestLoggerLogsStatusAndFlowID(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter("info", &buf)
	handler := FlowID(RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two log lines, got %d: %s", len(lines), buf.String())
	}
	var completed map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &completed); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if completed["msg"] != "request completed" {
		t.Fatalf("unexpected message %v", completed["msg"])
	}
	if completed["status"] != float64(http.StatusAccepted) {
		t.Fatalf("expected status 202, got %v", completed["status"])
	}
	if completed["flow_id"] != rr.Header().Get(FlowIDHeader) {
		t.Fatalf("expected flow id %s, got %v", rr.Header().Get(FlowIDHeader), completed["flow_id"])
	}
	if completed["request_id"] == "" {
		t.Fatalf("expected request id")
	}
}
