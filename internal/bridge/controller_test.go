package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/chatbot-proxy/internal/assistant"
	"github.com/wolfman30/chatbot-proxy/internal/ccaas"
	"github.com/wolfman30/chatbot-proxy/internal/scenario"
	"github.com/wolfman30/chatbot-proxy/internal/session"
)

type stubExchanger struct {
	mu     sync.Mutex
	calls  []string
	result *assistant.MessageResult
	err    error
	panic  bool
}

func (s *stubExchanger) ExchangeMessage(_ context.Context, _, _, text string) (*assistant.MessageResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, text)
	if s.panic {
		panic("exchange exploded")
	}
	return s.result, s.err
}

type staticAgents map[string]string

func (a staticAgents) AgentID(channel string) string {
	return a[string(ccaas.ParseChannel(channel))]
}

type controllerFixture struct {
	rec       *recorder
	exchanger *stubExchanger
	cache     *session.Cache
	ctrl      *Controller
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()
	f := &controllerFixture{rec: &recorder{}, exchanger: &stubExchanger{}}
	f.cache = session.NewCache(session.NewMemoryStore(), 5*time.Minute, quietLogger())
	fixed := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	f.ctrl = NewController(ControllerConfig{
		Sessions:  f.cache,
		Assistant: f.exchanger,
		Orchestrator: scenario.New(scenario.Config{
			AppName:       "chatbot-proxy",
			Keyword:       "ACME",
			LoopTestToken: "LOOPTEST",
			Now:           func() time.Time { return fixed },
		}),
		Deliverer: newTestDeliverer(f.rec),
		Agents:    staticAgents{"LIVE_CHAT": "bot-lc", "WHATSAPP": "bot-wa"},
		Logger:    quietLogger(),
	})
	return f
}

func event(text string) ccaas.InboundMessage {
	return ccaas.InboundMessage{
		ConversationID: "conv-1",
		Channel:        "WHATSAPP",
		From:           "+1555",
		To:             "bot",
		Content:        ccaas.InboundContent{Text: text},
	}
}

func TestHandleEventAssistantReply(t *testing.T) {
	f := newControllerFixture(t)
	f.exchanger.result = &assistant.MessageResult{Items: []assistant.OutputItem{
		assistant.Text{Text: "hi"},
		assistant.Pause{Duration: 500 * time.Millisecond},
		assistant.ConnectToAgent{Message: "please wait"},
	}}

	if err := f.ctrl.HandleEvent(context.Background(), event("  I need   help ")); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(f.exchanger.calls) != 1 || f.exchanger.calls[0] != "I need help" {
		t.Fatalf("expected normalized text sent to assistant, got %v", f.exchanger.calls)
	}
	assertEvents(t, f.rec.snapshot(),
		"send:hi", "sleep:500ms", "send:please wait", "sleep:250ms",
		"tag:routingInfo", "sleep:2000ms", "route:conv-1")
	if f.rec.agentIDs[0] != "bot-wa" {
		t.Fatalf("expected whatsapp bot id, got %q", f.rec.agentIDs[0])
	}
	if f.rec.sent[0].To != "+1555" || f.rec.sent[0].From != "bot" {
		t.Fatalf("expected reply addressed back to the sender, got %#v", f.rec.sent[0])
	}
}

func TestHandleEventKeywordWithoutSessionEchoes(t *testing.T) {
	f := newControllerFixture(t)

	if err := f.ctrl.HandleEvent(context.Background(), event("acme")); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(f.exchanger.calls) != 0 {
		t.Fatalf("assistant must not be called for the keyword")
	}
	want := "Hello this is \"chatbot-proxy\", I have received your 'ACME' at 2024-03-09 14:05:07.\nThis is an automated loopback response."
	assertEvents(t, f.rec.snapshot(), "send:"+want)
}

func TestHandleEventKeywordWithSessionReportsStatus(t *testing.T) {
	f := newControllerFixture(t)
	if _, err := f.cache.Create(context.Background(), "conv-1", "sess-7", "+1555"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := f.ctrl.HandleEvent(context.Background(), event("ACME")); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(f.exchanger.calls) != 0 {
		t.Fatalf("assistant must not be called for a status query")
	}
	want := "This conversation is connected to Watson Assistant via chatbot-proxy already.\nInfobip ConversationId=conv-1\nWatson Assistant SessionId=sess-7"
	assertEvents(t, f.rec.snapshot(), "send:"+want)
}

func TestHandleEventStopWithSession(t *testing.T) {
	f := newControllerFixture(t)
	f.exchanger.err = errors.New("backend down")
	if _, err := f.cache.Create(context.Background(), "conv-1", "sess-7", "+1555"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := f.ctrl.HandleEvent(context.Background(), event("Stop")); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(f.exchanger.calls) != 0 {
		t.Fatalf("assistant must not be called on STOP")
	}
	assertEvents(t, f.rec.snapshot(), "send:"+scenario.TextStopped, "delete:sess-7")
}

func TestHandleEventStopDeletesSessionWhenConfirmationFails(t *testing.T) {
	f := newControllerFixture(t)
	f.rec.failSendAt = 1
	if _, err := f.cache.Create(context.Background(), "conv-1", "sess-7", "+1555"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := f.ctrl.HandleEvent(context.Background(), event("STOP"))
	if !errors.Is(err, ErrChannelDelivery) {
		t.Fatalf("expected ErrChannelDelivery, got %v", err)
	}
	assertEvents(t, f.rec.snapshot(), "send:"+scenario.TextStopped, "delete:sess-7")
}

func TestHandleEventStopWithoutSession(t *testing.T) {
	f := newControllerFixture(t)

	if err := f.ctrl.HandleEvent(context.Background(), event("STOP")); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	assertEvents(t, f.rec.snapshot(), "send:"+scenario.TextStopped)
}

func TestHandleEventDegraded(t *testing.T) {
	f := newControllerFixture(t)

	if err := f.ctrl.HandleEvent(context.Background(), event("hello")); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	assertEvents(t, f.rec.snapshot(), "send:"+scenario.TextUnavailableAsk)
}

func TestHandleEventDegradedAgentRequestRoutes(t *testing.T) {
	f := newControllerFixture(t)
	f.exchanger.err = assistant.ErrBackendUnavailable

	if err := f.ctrl.HandleEvent(context.Background(), event("talk to an agent")); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	assertEvents(t, f.rec.snapshot(),
		"send:"+scenario.TextUnavailableRouting, "tag:routingInfo", "sleep:2000ms", "route:conv-1")
}

func TestHandleEventDeliveryFailure(t *testing.T) {
	f := newControllerFixture(t)
	f.rec.failSendAt = 1
	f.exchanger.result = &assistant.MessageResult{Items: []assistant.OutputItem{assistant.Text{Text: "a"}, assistant.Text{Text: "b"}}}

	err := f.ctrl.HandleEvent(context.Background(), event("hello"))
	if !errors.Is(err, ErrChannelDelivery) {
		t.Fatalf("expected ErrChannelDelivery, got %v", err)
	}
	assertEvents(t, f.rec.snapshot(), "send:a")
}

func TestHandleEventRequiresConversationID(t *testing.T) {
	f := newControllerFixture(t)
	if err := f.ctrl.HandleEvent(context.Background(), ccaas.InboundMessage{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDispatchRunsInBackgroundAndRecovers(t *testing.T) {
	f := newControllerFixture(t)
	f.exchanger.panic = true

	ctx, cancel := context.WithCancel(context.Background())
	f.ctrl.Dispatch(ctx, event("hello"))
	cancel()

	waitCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := f.ctrl.Wait(waitCtx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if len(f.exchanger.calls) != 1 {
		t.Fatalf("expected event processed despite request cancellation")
	}

	f.exchanger.panic = false
	f.exchanger.result = &assistant.MessageResult{Items: []assistant.OutputItem{assistant.Text{Text: "ok"}}}
	f.ctrl.Dispatch(context.Background(), event("again"))
	if err := f.ctrl.Wait(waitCtx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	assertEvents(t, f.rec.snapshot(), "send:ok", "sleep:250ms")
}
