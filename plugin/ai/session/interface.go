// Package session holds per-conversation booking state and the store that
// serializes turns of the same conversation.
package session

import (
	"context"
	"slices"
	"time"

	"github.com/hrygo/calbook/plugin/ai/schedule"
)

const (
	// DefaultHistoryLimit is the number of executed actions kept per session.
	DefaultHistoryLimit = 20
	// DefaultTurnLimit is the number of utterance/reply turns kept per session.
	// This implements a sliding window to prevent unbounded growth.
	DefaultTurnLimit = 10
)

// Store owns all sessions. Mutations of the same id are serialized; different
// ids proceed independently.
type Store interface {
	// GetOrCreate returns a snapshot of the session, creating it if needed.
	GetOrCreate(id string) *Session

	// Update runs fn with exclusive access to a private copy of the session.
	// The copy is committed only when fn returns nil. Waiting for the lock
	// honours ctx.
	Update(ctx context.Context, id string, fn func(*Session) error) error

	// EvictIdle drops sessions untouched for longer than olderThan whose lock
	// is neither held nor awaited. It returns the number evicted.
	EvictIdle(olderThan time.Duration) int
}

// Session is the mutable state of one conversation.
type Session struct {
	ID string `json:"id"`

	// LastEventRef is the event "it" or "that meeting" refers to.
	LastEventRef *schedule.EventRef `json:"last_event_ref,omitempty"`
	// PendingIntent is the intent awaiting clarification. At most one.
	PendingIntent *schedule.Intent `json:"pending_intent,omitempty"`

	History []HistoryEntry `json:"history,omitempty"`
	Turns   []Turn         `json:"turns,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HistoryEntry records one executed action and how it ended.
type HistoryEntry struct {
	Action  schedule.Kind       `json:"action"`
	Ref     *schedule.EventRef  `json:"ref,omitempty"`
	Outcome schedule.ResultKind `json:"outcome"`
	Error   schedule.ErrorKind  `json:"error,omitempty"`
	At      time.Time           `json:"at"`
}

// Turn is one exchange of the conversation.
type Turn struct {
	Utterance string    `json:"utterance"`
	Reply     string    `json:"reply"`
	At        time.Time `json:"at"`
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.LastEventRef != nil {
		ref := *s.LastEventRef
		out.LastEventRef = &ref
	}
	if s.PendingIntent != nil {
		pending := s.PendingIntent.Clone()
		out.PendingIntent = &pending
	}
	out.History = make([]HistoryEntry, len(s.History))
	for i, h := range s.History {
		out.History[i] = h
		if h.Ref != nil {
			ref := *h.Ref
			out.History[i].Ref = &ref
		}
	}
	out.Turns = slices.Clone(s.Turns)
	return &out
}

// State returns the part of the session the intent resolver reads.
func (s *Session) State() schedule.State {
	return schedule.State{Pending: s.PendingIntent, LastEventRef: s.LastEventRef}
}

// SetPending parks intent as the single pending intent, replacing any other.
func (s *Session) SetPending(intent *schedule.Intent) {
	if intent == nil {
		s.PendingIntent = nil
		return
	}
	pending := intent.Clone()
	s.PendingIntent = &pending
}

// ClearPending drops the pending intent.
func (s *Session) ClearPending() {
	s.PendingIntent = nil
}

// SetLastEvent records ref as the most recent event; nil clears it.
func (s *Session) SetLastEvent(ref *schedule.EventRef) {
	if ref == nil {
		s.LastEventRef = nil
		return
	}
	r := *ref
	s.LastEventRef = &r
}

// Record appends a history entry. The store trims history on commit.
func (s *Session) Record(entry HistoryEntry) {
	s.History = append(s.History, entry)
}

// AppendTurn appends a turn. The store trims turns on commit.
func (s *Session) AppendTurn(turn Turn) {
	s.Turns = append(s.Turns, turn)
}

// trim keeps the most recent historyLimit entries and turnLimit turns.
func (s *Session) trim(historyLimit, turnLimit int) {
	if historyLimit > 0 && len(s.History) > historyLimit {
		s.History = slices.Clone(s.History[len(s.History)-historyLimit:])
	}
	if turnLimit > 0 && len(s.Turns) > turnLimit {
		s.Turns = slices.Clone(s.Turns[len(s.Turns)-turnLimit:])
	}
}

// RecentTurns returns a copy of the last n turns.
func (s *Session) RecentTurns(n int) []Turn {
	turns := s.Turns
	if n > 0 && n < len(turns) {
		turns = turns[len(turns)-n:]
	}
	return slices.Clone(turns)
}
