package main

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/wolfman30/chatbot-proxy/internal/ccaas"
	"github.com/wolfman30/chatbot-proxy/internal/flow"
	"github.com/wolfman30/chatbot-proxy/pkg/logging"
)

type recordingHandler struct {
	events []ccaas.InboundMessage
	flows  []string
	err    error
}

func (r *recordingHandler) HandleEvent(ctx context.Context, in ccaas.InboundMessage) error {
	id, _ := flow.IDFromContext(ctx)
	r.events = append(r.events, in)
	r.flows = append(r.flows, id)
	return r.err
}

func request(method, path, body string) events.APIGatewayV2HTTPRequest {
	return events.APIGatewayV2HTTPRequest{
		RawPath: path,
		Body:    body,
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			RequestID: "req-1",
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{
				Method: method,
				Path:   path,
			},
		},
	}
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter("error", io.Discard)
}

func TestHandleHealth(t *testing.T) {
	resp, err := handle(context.Background(), &recordingHandler{}, testLogger(), request(http.MethodGet, "/health", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.Body != "ok" {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestHandleRejectsNonPost(t *testing.T) {
	resp, _ := handle(context.Background(), &recordingHandler{}, testLogger(), request(http.MethodGet, "/webhooks/ccaas", ""))
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, resp.StatusCode)
	}
}

func TestHandleUnknownPath(t *testing.T) {
	resp, _ := handle(context.Background(), &recordingHandler{}, testLogger(), request(http.MethodPost, "/nope", "{}"))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHandleProcessesEventSynchronously(t *testing.T) {
	h := &recordingHandler{err: errors.New("delivery failed")}
	body := `{"conversationId":"conv-1","channel":"LIVE_CHAT","from":"a","to":"b","content":{"text":"hi"}}`

	resp, err := handle(context.Background(), h, testLogger(), request(http.MethodPost, "/", body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.Body != "" {
		t.Fatalf("expected empty 200, got %#v", resp)
	}
	if len(h.events) != 1 || h.events[0].Content.Text != "hi" {
		t.Fatalf("expected event handled, got %#v", h.events)
	}
	if h.flows[0] != "req-1" {
		t.Fatalf("expected request id as flow id, got %q", h.flows[0])
	}
}

func TestHandleBase64Body(t *testing.T) {
	h := &recordingHandler{}
	evt := request(http.MethodPost, "/webhooks/ccaas", base64.StdEncoding.EncodeToString([]byte(`{"conversationId":"conv-2","content":{"text":"x"}}`)))
	evt.IsBase64Encoded = true

	if _, err := handle(context.Background(), h, testLogger(), evt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.events) != 1 || h.events[0].ConversationID != "conv-2" {
		t.Fatalf("expected decoded event, got %#v", h.events)
	}
}

func TestHandleInvalidPayloadAcks(t *testing.T) {
	h := &recordingHandler{}
	resp, _ := handle(context.Background(), h, testLogger(), request(http.MethodPost, "/", "nope"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(h.events) != 0 {
		t.Fatalf("invalid payload must not be handled")
	}
}
