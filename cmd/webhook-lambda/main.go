package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/wolfman30/chatbot-proxy/cmd/mainconfig"
	"github.com/wolfman30/chatbot-proxy/internal/app/bootstrap"
	"github.com/wolfman30/chatbot-proxy/internal/ccaas"
	appconfig "github.com/wolfman30/chatbot-proxy/internal/config"
	"github.com/wolfman30/chatbot-proxy/internal/flow"
	"github.com/wolfman30/chatbot-proxy/pkg/logging"
)

// eventHandler processes one inbound message to completion.
type eventHandler interface {
	HandleEvent(ctx context.Context, in ccaas.InboundMessage) error
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx := context.Background()

	awsCfg, err := mainconfig.LoadAWS(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to prepare AWS configuration", "error", err)
		os.Exit(1)
	}

	store, err := bootstrap.BuildSessionStore(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to build session store", "error", err)
		os.Exit(1)
	}
	b, err := bootstrap.BuildBridge(ctx, cfg, store, nil, logger)
	if err != nil {
		logger.Error("bridge startup failed", "error", err)
		os.Exit(1)
	}

	lambda.Start(func(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		return handle(ctx, b.Controller, logger, evt)
	})
}

// handle runs the event synchronously: the execution environment may be
// frozen as soon as the response is returned.
func handle(ctx context.Context, h eventHandler, logger *logging.Logger, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(evt.RequestContext.HTTP.Method))
	path := strings.TrimSpace(evt.RawPath)
	if path == "" {
		path = strings.TrimSpace(evt.RequestContext.HTTP.Path)
	}

	if path == "/health" || path == "/_health" {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusOK, Body: "ok"}, nil
	}
	if method != http.MethodPost {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusMethodNotAllowed}, nil
	}
	switch path {
	case "/", "/webhooks/ccaas":
	default:
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusNotFound}, nil
	}

	ack := events.APIGatewayV2HTTPResponse{StatusCode: http.StatusOK}
	body, err := decodeBody(evt)
	if err != nil {
		logger.Warn("invalid lambda body encoding", "error", err)
		return ack, nil
	}
	var in ccaas.InboundMessage
	if err := json.Unmarshal(body, &in); err != nil || strings.TrimSpace(in.ConversationID) == "" {
		logger.Warn("invalid ccaas webhook payload", "error", err)
		return ack, nil
	}

	flowID := evt.RequestContext.RequestID
	if flowID == "" {
		flowID = flow.NewID(evtTime(evt))
	}
	ctx = flow.WithID(ctx, flowID)
	if err := h.HandleEvent(ctx, in); err != nil {
		logger.Error("inbound message not fully handled", "flow_id", flowID, "conversation_id", in.ConversationID, "error", err)
	}
	return ack, nil
}

func decodeBody(evt events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !evt.IsBase64Encoded {
		return []byte(evt.Body), nil
	}
	return base64.StdEncoding.DecodeString(evt.Body)
}

func evtTime(evt events.APIGatewayV2HTTPRequest) time.Time {
	if evt.RequestContext.TimeEpoch > 0 {
		return time.UnixMilli(evt.RequestContext.TimeEpoch)
	}
	return time.Now()
}
