package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/calbook/plugin/ai/metrics"
	"github.com/hrygo/calbook/plugin/ai/schedule"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		timeout   bool
	}{
		{"BackendTimeout", &schedule.BackendError{Op: "create", Transient: true, Timeout: true, Err: context.DeadlineExceeded}, true, true},
		{"Backend5xx", schedule.BackendStatusError("create", 503, errors.New("unavailable")), true, false},
		{"Backend429", schedule.BackendStatusError("list", 429, errors.New("rate limited")), true, false},
		{"Backend403", schedule.BackendStatusError("create", 403, errors.New("forbidden")), false, false},
		{"BackendNotFound", schedule.BackendStatusError("get", 404, errors.New("gone")), false, false},
		{"WrappedBackend", fmt.Errorf("creating: %w", schedule.BackendStatusError("create", 502, errors.New("bad gateway"))), true, false},
		{"DomainTimeout", schedule.NewError(schedule.ErrorBackendTimeout, "create", nil), true, true},
		{"DomainNoSuchEvent", schedule.NewError(schedule.ErrorNoSuchEvent, "standup", nil), false, false},
		{"Canceled", context.Canceled, false, false},
		{"DeadlineExceeded", context.DeadlineExceeded, true, true},
		{"NetError", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, true, false},
		{"ConnectionResetMessage", errors.New("read: connection reset by peer"), true, false},
		{"Unknown", errors.New("something odd"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ClassifyError(tt.err)
			assert.Equal(t, tt.transient, c.IsTransient())
			assert.Equal(t, tt.timeout, c.Timeout)
			assert.Equal(t, tt.transient, ShouldRetry(tt.err))
			assert.ErrorIs(t, c, tt.err)
		})
	}

	assert.Nil(t, ClassifyError(nil))
	assert.False(t, ShouldRetry(nil))
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, metrics.OutcomeOK, outcomeOf(nil))
	assert.Equal(t, metrics.OutcomeTimeout, outcomeOf(context.DeadlineExceeded))
	assert.Equal(t, metrics.OutcomeTransient, outcomeOf(schedule.BackendStatusError("list", 500, errors.New("boom"))))
	assert.Equal(t, metrics.OutcomeTerminal, outcomeOf(schedule.BackendStatusError("list", 400, errors.New("bad"))))
}
