package scenario

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/wolfman30/chatbot-proxy/internal/assistant"
	"github.com/wolfman30/chatbot-proxy/internal/ccaas"
	"github.com/wolfman30/chatbot-proxy/internal/session"
)

const (
	// DefaultPause follows every send the assistant did not pace itself.
	DefaultPause = 250 * time.Millisecond
	// DefaultRoutingTag is assigned before the route-to-agent call.
	DefaultRoutingTag = "routingInfo"

	timestampLayout = "2006-01-02 15:04:05"
)

// User-facing texts produced locally.
const (
	TextUnavailableRouting = "Virtual Assistant is momentarily not available. Chatbot Proxy will route this conversation to a Human Agent."
	TextUnavailableAsk     = "Virtual Assistant is momentarily not available. Please respond with 'agent' to have this conversation routed to a Human Agent."
	TextStopped            = "Chatbot Proxy has terminated this session with Virtual Assistant on your request."
)

var agentRequest = regexp.MustCompile(`(?i)agent|route`)

// Config tunes an Orchestrator.
type Config struct {
	AppName       string
	Keyword       string
	LoopTestToken string
	RoutingTag    string
	DefaultPause  time.Duration
	Now           func() time.Time
}

// Orchestrator classifies inbound texts and builds reply scenarios. It does
// no I/O and is safe for concurrent use.
type Orchestrator struct {
	appName      string
	routingTag   string
	defaultPause time.Duration
	now          func() time.Time
	filter       prefilter
}

// New builds an Orchestrator, filling unset fields with defaults.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		appName:      cfg.AppName,
		routingTag:   strings.TrimSpace(cfg.RoutingTag),
		defaultPause: cfg.DefaultPause,
		now:          cfg.Now,
		filter:       newPrefilter(cfg.Keyword, cfg.LoopTestToken),
	}
	if o.routingTag == "" {
		o.routingTag = DefaultRoutingTag
	}
	if o.defaultPause <= 0 {
		o.defaultPause = DefaultPause
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Classify decides whether raw should reach the assistant.
func (o *Orchestrator) Classify(raw string, hasSession bool) Classification {
	return o.filter.classify(raw, hasSession)
}

// Translate maps the assistant result for in to a queue. A nil result, or one
// that yields nothing to send, falls back to the degraded reply for text.
func (o *Orchestrator) Translate(in ccaas.InboundMessage, text string, result *assistant.MessageResult) Queue {
	if result == nil {
		return o.Degraded(in, text)
	}

	items := result.Items
	q := make(Queue, 0, len(items)*2+1)
	handoff := false
	for i, item := range items {
		switch v := item.(type) {
		case assistant.Text:
			q = o.appendSend(q, ccaas.TextReply(in, v.Text), items, i)
		case assistant.Option:
			fallback := SerializeOption(v)
			msg := ccaas.TextReply(in, fallback)
			if ccaas.ParseChannel(in.Channel).SupportsButtons() {
				msg = ccaas.ButtonReply(in, fallback, ButtonWidget(v))
			}
			q = o.appendSend(q, msg, items, i)
		case assistant.Pause:
			q = append(q, Pause{Duration: v.Duration})
		case assistant.ConnectToAgent:
			handoff = true
			q = o.appendSend(q, ccaas.TextReply(in, v.Message), items, i)
		case assistant.Unsupported:
			q = o.appendSend(q, ccaas.TextReply(in, unsupportedText(v.Type)), items, i)
		default:
			q = o.appendSend(q, ccaas.TextReply(in, unsupportedText(item.Kind())), items, i)
		}
	}

	if q.Sends() == 0 {
		if handoff {
			return o.degradedRoute(in)
		}
		return o.Degraded(in, text)
	}
	if handoff {
		q = append(q, o.route())
	}
	return q
}

// Degraded is the reply when the assistant cannot be reached. A text asking
// for an agent is routed right away.
func (o *Orchestrator) Degraded(in ccaas.InboundMessage, text string) Queue {
	if agentRequest.MatchString(text) {
		return o.degradedRoute(in)
	}
	return Queue{Send{Message: ccaas.TextReply(in, TextUnavailableAsk)}}
}

// IsDegraded reports whether q is one of the degraded replies.
func IsDegraded(q Queue) bool {
	if len(q) == 0 {
		return false
	}
	send, ok := q[0].(Send)
	if !ok {
		return false
	}
	text := send.Message.Content.Text
	return text == TextUnavailableAsk || text == TextUnavailableRouting
}

// Echo answers text locally without the assistant.
func (o *Orchestrator) Echo(in ccaas.InboundMessage, text string) Queue {
	reply := fmt.Sprintf("Hello this is \"%s\", I have received your '%s' at %s.\nThis is an automated loopback response.",
		o.appName, text, o.now().Format(timestampLayout))
	return Queue{Send{Message: ccaas.TextReply(in, reply)}}
}

// Status reports the session already attached to the conversation.
func (o *Orchestrator) Status(in ccaas.InboundMessage, rec session.Record) Queue {
	reply := fmt.Sprintf("This conversation is connected to Watson Assistant via %s already.\nInfobip ConversationId=%s\nWatson Assistant SessionId=%s",
		o.appName, in.ConversationID, rec.SessionID)
	return Queue{Send{Message: ccaas.TextReply(in, reply)}}
}

// Stop confirms termination, then ends the scenario. sessionID is the
// session to delete, empty when none existed.
func (o *Orchestrator) Stop(in ccaas.InboundMessage, sessionID string) Queue {
	return Queue{
		Send{Message: ccaas.TextReply(in, TextStopped)},
		Terminate{SessionID: sessionID},
	}
}

// SerializeOption renders an option list as "title [label (entrer: value), ...]".
func SerializeOption(opt assistant.Option) string {
	parts := make([]string, 0, len(opt.Choices))
	for _, c := range opt.Choices {
		parts = append(parts, c.Label+" (entrer: "+c.Value+")")
	}
	return opt.Title + " [" + strings.Join(parts, ", ") + "]"
}

// ButtonWidget renders an option list as postback buttons.
func ButtonWidget(opt assistant.Option) ccaas.ButtonWidget {
	widget := ccaas.ButtonWidget{
		Text:           opt.Title,
		ButtonPayloads: make([]ccaas.ButtonPayload, 0, len(opt.Choices)),
	}
	for _, c := range opt.Choices {
		widget.ButtonPayloads = append(widget.ButtonPayloads, ccaas.ButtonPayload{
			Title:   c.Label,
			Type:    ccaas.ButtonTypePostback,
			Payload: c.Value,
		})
	}
	return widget
}

func (o *Orchestrator) degradedRoute(in ccaas.InboundMessage) Queue {
	return Queue{Send{Message: ccaas.TextReply(in, TextUnavailableRouting)}, o.route()}
}

func (o *Orchestrator) route() Route {
	return Route{Tags: []string{o.routingTag}}
}

// appendSend adds msg and, unless the next item paces explicitly, the default
// pause. Empty texts are dropped.
func (o *Orchestrator) appendSend(q Queue, msg ccaas.OutboundMessage, items []assistant.OutputItem, i int) Queue {
	if msg.Content.Text == "" && msg.Content.Button == nil {
		return q
	}
	q = append(q, Send{Message: msg})
	if i+1 < len(items) {
		if _, explicit := items[i+1].(assistant.Pause); explicit {
			return q
		}
	}
	return append(q, Pause{Duration: o.defaultPause})
}

func unsupportedText(kind string) string {
	return "(response type '" + kind + "' not supported yet)"
}
