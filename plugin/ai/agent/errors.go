package agent

import "errors"

// Oracle errors. Both surface to the user as an interpretation failure.
var (
	// ErrUninterpretable indicates the utterance names no calendar action.
	ErrUninterpretable = errors.New("utterance not understood")

	// ErrOracleUnavailable indicates the oracle could not be reached.
	ErrOracleUnavailable = errors.New("oracle unavailable")

	// ErrInvalidOracleOutput indicates the oracle answered with something
	// that does not decode into an intent.
	ErrInvalidOracleOutput = errors.New("invalid oracle output")
)
