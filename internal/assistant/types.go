package assistant

import (
	"encoding/json"
	"fmt"
	"time"
)

// Output item kinds as reported in response_type.
const (
	KindText           = "text"
	KindOption         = "option"
	KindPause          = "pause"
	KindConnectToAgent = "connect_to_agent"
)

// OutputItem is one typed element of an assistant reply. The concrete types
// are Text, Option, Pause, ConnectToAgent and Unsupported.
type OutputItem interface {
	Kind() string
}

// Text is a plain text reply.
type Text struct {
	Text string
}

// Option offers a titled list of choices.
type Option struct {
	Title   string
	Choices []Choice
}

// Choice is one selectable option. Value is the text sent back when chosen.
type Choice struct {
	Label string
	Value string
}

// Pause asks the channel to wait before the next item.
type Pause struct {
	Duration time.Duration
}

// ConnectToAgent requests a hand-off to a human agent.
type ConnectToAgent struct {
	Message string
}

// Unsupported carries any response_type the bridge cannot render.
type Unsupported struct {
	Type string
}

func (Text) Kind() string           { return KindText }
func (Option) Kind() string         { return KindOption }
func (Pause) Kind() string          { return KindPause }
func (ConnectToAgent) Kind() string { return KindConnectToAgent }
func (u Unsupported) Kind() string  { return u.Type }

// MessageResult is the decoded reply to one message exchange.
type MessageResult struct {
	SessionID string
	Items     []OutputItem
	Intents   []string
}

type messageResponse struct {
	Output struct {
		Generic []genericItem `json:"generic"`
		Intents []struct {
			Intent     string  `json:"intent"`
			Confidence float64 `json:"confidence"`
		} `json:"intents"`
	} `json:"output"`
}

type genericItem struct {
	ResponseType string `json:"response_type"`
	Text         string `json:"text"`
	Title        string `json:"title"`
	Time         int64  `json:"time"`
	Options      []struct {
		Label string `json:"label"`
		Value struct {
			Input struct {
				Text string `json:"text"`
			} `json:"input"`
		} `json:"value"`
	} `json:"options"`
	AgentAvailable *struct {
		Message string `json:"message"`
	} `json:"agent_available"`
}

func (g genericItem) toOutputItem() OutputItem {
	switch g.ResponseType {
	case KindText:
		return Text{Text: g.Text}
	case KindOption:
		opt := Option{Title: g.Title, Choices: make([]Choice, 0, len(g.Options))}
		for _, o := range g.Options {
			opt.Choices = append(opt.Choices, Choice{Label: o.Label, Value: o.Value.Input.Text})
		}
		return opt
	case KindPause:
		return Pause{Duration: time.Duration(g.Time) * time.Millisecond}
	case KindConnectToAgent:
		msg := ""
		if g.AgentAvailable != nil {
			msg = g.AgentAvailable.Message
		}
		return ConnectToAgent{Message: msg}
	default:
		return Unsupported{Type: g.ResponseType}
	}
}

// DecodeMessageResult parses a message response body into typed items.
func DecodeMessageResult(sessionID string, body []byte) (*MessageResult, error) {
	var resp messageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("assistant: decode message response: %w", err)
	}
	result := &MessageResult{
		SessionID: sessionID,
		Items:     make([]OutputItem, 0, len(resp.Output.Generic)),
	}
	for _, g := range resp.Output.Generic {
		result.Items = append(result.Items, g.toOutputItem())
	}
	for _, in := range resp.Output.Intents {
		result.Intents = append(result.Intents, in.Intent)
	}
	return result, nil
}
