package scenario

import (
	"regexp"
	"strings"
)

// Intent is what the pre-filter decided to do with an inbound text.
type Intent int

const (
	// IntentAssistant forwards the text to the assistant.
	IntentAssistant Intent = iota
	// IntentStatus answers with the current session state.
	IntentStatus
	// IntentStop terminates the session.
	IntentStop
	// IntentEcho answers with a local loopback reply.
	IntentEcho
)

func (i Intent) String() string {
	switch i {
	case IntentStatus:
		return "status"
	case IntentStop:
		return "stop"
	case IntentEcho:
		return "echo"
	default:
		return "assistant"
	}
}

// Classification is the pre-filter verdict. Text is the normalized input with
// a leading shared-account keyword removed.
type Classification struct {
	Intent Intent
	Text   string
}

const stopCommand = "STOP"

type prefilter struct {
	keyword   string
	keywordRE *regexp.Regexp
	loopTest  string
}

func newPrefilter(keyword, loopTest string) prefilter {
	p := prefilter{keyword: strings.TrimSpace(keyword), loopTest: strings.TrimSpace(loopTest)}
	if p.keyword != "" {
		p.keywordRE = regexp.MustCompile(`(?i)^\s*` + regexp.QuoteMeta(p.keyword) + `($|\s*)`)
	}
	return p
}

// Normalize collapses whitespace runs to one space and trims both ends.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func (p prefilter) classify(raw string, hasSession bool) Classification {
	text := Normalize(raw)

	if loc := p.matchKeyword(text); loc != nil {
		text = text[loc[1]:]
		if text == "" {
			if hasSession {
				return Classification{Intent: IntentStatus}
			}
			text = p.keyword
		}
	}

	switch {
	case strings.EqualFold(text, stopCommand):
		return Classification{Intent: IntentStop, Text: text}
	case p.loopTest != "" && strings.EqualFold(text, p.loopTest):
		return Classification{Intent: IntentEcho, Text: text}
	case p.matchKeyword(text) != nil:
		return Classification{Intent: IntentEcho, Text: text}
	default:
		return Classification{Intent: IntentAssistant, Text: text}
	}
}

func (p prefilter) matchKeyword(text string) []int {
	if p.keywordRE == nil {
		return nil
	}
	return p.keywordRE.FindStringIndex(text)
}
