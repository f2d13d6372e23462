package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/hrygo/calbook/plugin/ai/schedule"
)

// MockOracle is a scripted Oracle for testing. Utterances without a script
// go to the fallback, or fail as uninterpretable when there is none.
type MockOracle struct {
	mu        sync.Mutex
	responses map[string]mockResponse
	fallback  Oracle
	calls     []string
}

type mockResponse struct {
	intent schedule.Intent
	err    error
}

var _ Oracle = (*MockOracle)(nil)

// NewMockOracle creates a mock oracle. fallback may be nil.
func NewMockOracle(fallback Oracle) *MockOracle {
	return &MockOracle{responses: make(map[string]mockResponse), fallback: fallback}
}

// On scripts the intent returned for utterance.
func (m *MockOracle) On(utterance string, intent schedule.Intent) *MockOracle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[utterance] = mockResponse{intent: intent}
	return m
}

// OnError scripts the error returned for utterance.
func (m *MockOracle) OnError(utterance string, err error) *MockOracle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[utterance] = mockResponse{err: err}
	return m
}

// Calls returns the utterances interpreted so far.
func (m *MockOracle) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Name implements Oracle.
func (m *MockOracle) Name() string {
	return "mock"
}

// Interpret implements Oracle.
func (m *MockOracle) Interpret(ctx context.Context, utterance string, cc ConversationContext) (schedule.Intent, error) {
	m.mu.Lock()
	m.calls = append(m.calls, utterance)
	resp, ok := m.responses[utterance]
	m.mu.Unlock()

	if ok {
		return resp.intent.Clone(), resp.err
	}
	if m.fallback != nil {
		return m.fallback.Interpret(ctx, utterance, cc)
	}
	return schedule.Intent{}, fmt.Errorf("%w: no script for %q", ErrUninterpretable, utterance)
}
