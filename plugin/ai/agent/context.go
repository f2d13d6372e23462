// Package agent turns utterances into calendar actions: it asks an oracle
// what the user meant, resolves the intent against session state, checks for
// conflicts and drives the calendar backend.
package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hrygo/calbook/plugin/ai/schedule"
	"github.com/hrygo/calbook/plugin/ai/session"
)

// ConversationContext is what an oracle may know about the conversation when
// interpreting one utterance.
type ConversationContext struct {
	// Now is the reference instant for relative expressions.
	Now time.Time
	// Location is the display timezone.
	Location *time.Location
	// Turns are the most recent exchanges, oldest first.
	Turns []session.Turn
	// Pending is the intent awaiting clarification, if any.
	Pending *schedule.Intent
	// LastEvent is the most recently referenced event, if any.
	LastEvent *schedule.EventRef
}

// NewConversationContext builds the oracle context from a session snapshot.
func NewConversationContext(s *session.Session, now time.Time, loc *time.Location, turns int) ConversationContext {
	cc := ConversationContext{Now: now.In(loc), Location: loc}
	if s == nil {
		return cc
	}
	cc.Turns = s.RecentTurns(turns)
	if s.PendingIntent != nil {
		pending := s.PendingIntent.Clone()
		cc.Pending = &pending
	}
	if s.LastEventRef != nil {
		ref := *s.LastEventRef
		cc.LastEvent = &ref
	}
	return cc
}

// ToHistoryPrompt renders the recent turns for inclusion in an LLM prompt.
func (c ConversationContext) ToHistoryPrompt() string {
	var b strings.Builder
	for _, turn := range c.Turns {
		fmt.Fprintf(&b, "User: %s\n", turn.Utterance)
		if turn.Reply != "" {
			fmt.Fprintf(&b, "Assistant: %s\n", turn.Reply)
		}
	}
	return b.String()
}

// ToStatePrompt renders the pending intent and last event for an LLM prompt.
// It returns "" when there is no state worth mentioning.
func (c ConversationContext) ToStatePrompt() string {
	var parts []string
	if c.Pending != nil {
		if data, err := json.Marshal(c.Pending); err == nil {
			parts = append(parts, "Pending request awaiting details: "+string(data))
		}
	}
	if c.LastEvent != nil && c.LastEvent.ID != "" {
		parts = append(parts, "Last discussed event id: "+c.LastEvent.ID)
	}
	return strings.Join(parts, "\n")
}
