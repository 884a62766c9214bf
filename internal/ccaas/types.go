package ccaas

import "strings"

// Channel identifies the messaging surface of a conversation.
type Channel string

const (
	ChannelLiveChat Channel = "LIVE_CHAT"
	ChannelWhatsApp Channel = "WHATSAPP"
)

// ParseChannel normalizes the channel names used across the Conversations API.
func ParseChannel(raw string) Channel {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "LIVECHAT", "LIVE_CHAT":
		return ChannelLiveChat
	case "WHATSAPP":
		return ChannelWhatsApp
	default:
		return Channel(strings.ToUpper(strings.TrimSpace(raw)))
	}
}

// SupportsButtons reports whether the channel renders button widgets.
func (c Channel) SupportsButtons() bool {
	return c == ChannelLiveChat
}

// ContentType is the outbound message content discriminator.
type ContentType string

const (
	ContentTypeText   ContentType = "TEXT"
	ContentTypeButton ContentType = "BUTTON"
)

const (
	DirectionOutbound  = "OUTBOUND"
	ButtonTypeLiveChat = "LIVECHAT"
	ButtonTypePostback = "POSTBACK"
)

// InboundMessage is the webhook payload forwarded for an external bot.
type InboundMessage struct {
	ConversationID string         `json:"conversationId"`
	Channel        string         `json:"channel"`
	From           string         `json:"from"`
	To             string         `json:"to"`
	Direction      string         `json:"direction,omitempty"`
	ContentType    string         `json:"contentType,omitempty"`
	Content        InboundContent `json:"content"`
}

// InboundContent carries the customer's text.
type InboundContent struct {
	Text string `json:"text"`
}

// OutboundMessage is posted to /conversations/{id}/messages.
type OutboundMessage struct {
	From           string          `json:"from"`
	To             string          `json:"to"`
	Channel        string          `json:"channel"`
	ConversationID string          `json:"conversationId"`
	Direction      string          `json:"direction"`
	ContentType    ContentType     `json:"contentType"`
	ButtonType     string          `json:"buttonType,omitempty"`
	Content        OutboundContent `json:"content"`
}

// OutboundContent holds either plain text or a button widget with its text fallback.
type OutboundContent struct {
	Text        string        `json:"text,omitempty"`
	ContentType ContentType   `json:"contentType,omitempty"`
	ButtonType  string        `json:"buttonType,omitempty"`
	Button      *ButtonWidget `json:"button,omitempty"`
}

// ButtonWidget is the LIVECHAT button payload.
type ButtonWidget struct {
	Text           string          `json:"text"`
	ButtonPayloads []ButtonPayload `json:"buttonPayloads"`
}

// ButtonPayload is one postback button.
type ButtonPayload struct {
	Title   string `json:"title"`
	Type    string `json:"type"`
	Payload string `json:"payload"`
}

// TextReply builds an OUTBOUND text message answering in.
func TextReply(in InboundMessage, text string) OutboundMessage {
	return OutboundMessage{
		From:           in.To,
		To:             in.From,
		Channel:        in.Channel,
		ConversationID: in.ConversationID,
		Direction:      DirectionOutbound,
		ContentType:    ContentTypeText,
		Content:        OutboundContent{Text: text},
	}
}

// ButtonReply builds an OUTBOUND button message answering in; fallback is
// kept as the content text for clients that cannot render the widget.
func ButtonReply(in InboundMessage, fallback string, widget ButtonWidget) OutboundMessage {
	msg := TextReply(in, fallback)
	msg.ContentType = ContentTypeButton
	msg.ButtonType = ButtonTypeLiveChat
	msg.Content.ContentType = ContentTypeButton
	msg.Content.ButtonType = ButtonTypeLiveChat
	msg.Content.Button = &widget
	return msg
}
