package agent

import (
	"context"

	"github.com/hrygo/calbook/plugin/ai/schedule"
)

// Oracle interprets one utterance into a possibly incomplete intent.
// Implementations are treated as non-deterministic and occasionally wrong;
// every field they return still goes through validation.
type Oracle interface {
	// Interpret returns the intent the utterance expresses. It fails with an
	// error wrapping ErrUninterpretable or ErrOracleUnavailable.
	Interpret(ctx context.Context, utterance string, cc ConversationContext) (schedule.Intent, error)

	// Name identifies the oracle in logs and metrics.
	Name() string
}
