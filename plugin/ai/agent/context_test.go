package agent

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/calbook/plugin/ai/aitime"
	"github.com/hrygo/calbook/plugin/ai/schedule"
	"github.com/hrygo/calbook/plugin/ai/session"
)

func TestToHistoryPrompt(t *testing.T) {
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, aitime.IST)

	// Empty history
	assert.Equal(t, "", NewConversationContext(nil, now, aitime.IST, 5).ToHistoryPrompt())

	s := &session.Session{ID: "c1"}
	s.AppendTurn(session.Turn{Utterance: "Hello", Reply: "Hi there"})
	s.AppendTurn(session.Turn{Utterance: "Book lunch", Reply: "When?"})
	s.AppendTurn(session.Turn{Utterance: "At 1 PM"})

	prompt := NewConversationContext(s, now, aitime.IST, 2).ToHistoryPrompt()
	assert.NotContains(t, prompt, "Hello")
	assert.Contains(t, prompt, "User: Book lunch")
	assert.Contains(t, prompt, "Assistant: When?")
	// Chronological order
	assert.True(t, strings.Index(prompt, "Book lunch") < strings.Index(prompt, "At 1 PM"))
}

func TestToStatePrompt(t *testing.T) {
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, aitime.IST)
	s := &session.Session{ID: "c1"}
	assert.Empty(t, NewConversationContext(s, now, aitime.IST, 5).ToStatePrompt())

	s.SetPending(&schedule.Intent{Kind: schedule.KindCreateEvent, Title: "Lunch"})
	s.SetLastEvent(&schedule.EventRef{ID: "evt-1"})
	cc := NewConversationContext(s, now, aitime.IST, 5)

	prompt := cc.ToStatePrompt()
	assert.Contains(t, prompt, `"kind":"create_event"`)
	assert.Contains(t, prompt, "evt-1")

	// The context holds copies.
	cc.Pending.Title = "changed"
	assert.Equal(t, "Lunch", s.PendingIntent.Title)
}
