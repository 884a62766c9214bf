package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/chatbot-proxy/internal/ccaas"
	"github.com/wolfman30/chatbot-proxy/internal/flow"
	"github.com/wolfman30/chatbot-proxy/pkg/logging"
)

const (
	maxWebhookBody  = 1 << 20
	timestampLayout = "2006-01-02 15:04:05"
)

// EventDispatcher starts background processing of an inbound message.
type EventDispatcher interface {
	Dispatch(ctx context.Context, in ccaas.InboundMessage)
}

// CCaaSWebhookHandler receives messages forwarded to the external bot.
type CCaaSWebhookHandler struct {
	appName    string
	startedAt  time.Time
	dispatcher EventDispatcher
	logger     *logging.Logger
	now        func() time.Time
}

func NewCCaaSWebhookHandler(appName string, dispatcher EventDispatcher, logger *logging.Logger) *CCaaSWebhookHandler {
	if dispatcher == nil {
		panic("handlers: dispatcher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CCaaSWebhookHandler{
		appName:    appName,
		startedAt:  time.Now(),
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// HandleMessage acknowledges the delivery with an empty 200 and hands the
// message to the dispatcher. The API for external bots expects no reply body.
func (h *CCaaSWebhookHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	flowID, _ := flow.IDFromContext(r.Context())
	logger := h.logger.With("flow_id", flowID)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	w.WriteHeader(http.StatusOK)
	if err != nil {
		logger.Warn("failed to read ccaas webhook body", "error", err)
		return
	}

	var in ccaas.InboundMessage
	if err := json.Unmarshal(body, &in); err != nil {
		logger.Warn("invalid ccaas webhook payload", "error", err)
		return
	}
	if strings.TrimSpace(in.ConversationID) == "" {
		logger.Warn("ccaas webhook without conversation id")
		return
	}
	logger.Info("ccaas message received",
		"conversation_id", in.ConversationID,
		"channel", in.Channel,
		"remote_ip", clientIP(r),
	)
	logger.Debug("ccaas webhook payload", "body", string(body))

	h.dispatcher.Dispatch(r.Context(), in)
}

// Status answers GET / with a plain-text liveness banner.
func (h *CCaaSWebhookHandler) Status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "Hello client connecting from %s, this is \"%s\", up since %s, reporting at %s",
		clientIP(r), h.appName, h.startedAt.Format(timestampLayout), h.now().Format(timestampLayout))
}

// HealthCheck reports process liveness.
func (h *CCaaSWebhookHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
