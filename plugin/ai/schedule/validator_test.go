package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/calbook/plugin/ai/aitime"
)

// fixedNow is Monday 2024-01-15 09:00 IST.
var fixedNow = time.Date(2024, 1, 15, 9, 0, 0, 0, ist)

func newTestValidator(opts ...ValidatorOption) *Validator {
	return NewValidator(aitime.NewService(""), opts...)
}

func TestValidator_Create(t *testing.T) {
	v := newTestValidator()
	ctx := context.Background()

	tests := []struct {
		name      string
		intent    Intent
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "tomorrow 2 PM for 1 hour",
			intent:    Intent{Kind: KindCreateEvent, Title: "meeting", Start: "tomorrow at 2 PM", Duration: "1 hour"},
			wantStart: at(16, 14, 0),
			wantEnd:   at(16, 15, 0),
		},
		{
			name:      "explicit end on start day",
			intent:    Intent{Kind: KindCreateEvent, Title: "Review", Start: "friday 10am", End: "11:30"},
			wantStart: at(19, 10, 0),
			wantEnd:   at(19, 11, 30),
		},
		{
			name:      "default duration",
			intent:    Intent{Kind: KindCreateEvent, Title: "Lunch", Start: "tomorrow 1 PM"},
			wantStart: at(16, 13, 0),
			wantEnd:   at(16, 14, 0),
		},
		{
			name:      "foreign zone converted",
			intent:    Intent{Kind: KindCreateEvent, Title: "Call", Start: "tomorrow 9am UTC", Duration: "30 minutes"},
			wantStart: at(16, 14, 30),
			wantEnd:   at(16, 15, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, err := v.Validate(ctx, tt.intent, fixedNow, nil)
			require.NoError(t, err)
			assert.Equal(t, KindCreateEvent, action.Kind)
			assert.True(t, tt.wantStart.Equal(action.Window.Start), "start %v", action.Window.Start)
			assert.True(t, tt.wantEnd.Equal(action.Window.End), "end %v", action.Window.End)
			assert.Equal(t, "IST", action.Window.Timezone())
			assert.Empty(t, action.MissingFields())
		})
	}
}

func TestValidator_Create_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		validator  *Validator
		intent     Intent
		wantKind   ErrorKind
		wantFields []string
	}{
		{
			name:       "missing title and start",
			validator:  newTestValidator(),
			intent:     Intent{Kind: KindCreateEvent},
			wantKind:   ErrorMissingSlots,
			wantFields: []string{FieldTitle, FieldStart},
		},
		{
			name:       "end before start",
			validator:  newTestValidator(),
			intent:     Intent{Kind: KindCreateEvent, Title: "x", Start: "tomorrow 3pm", End: "2pm"},
			wantKind:   ErrorMissingSlots,
			wantFields: []string{FieldEnd},
		},
		{
			name:       "no default duration",
			validator:  newTestValidator(WithDefaultDuration(0)),
			intent:     Intent{Kind: KindCreateEvent, Title: "x", Start: "tomorrow 3pm"},
			wantKind:   ErrorMissingSlots,
			wantFields: []string{FieldEnd},
		},
		{
			name:       "unparseable start",
			validator:  newTestValidator(),
			intent:     Intent{Kind: KindCreateEvent, Title: "x", Start: "when pigs fly"},
			wantKind:   ErrorUnparseableTime,
			wantFields: []string{FieldStart},
		},
		{
			name:       "day without time",
			validator:  newTestValidator(),
			intent:     Intent{Kind: KindCreateEvent, Title: "x", Start: "friday"},
			wantKind:   ErrorAmbiguousTime,
			wantFields: []string{FieldStart},
		},
		{
			name:       "bad duration",
			validator:  newTestValidator(),
			intent:     Intent{Kind: KindCreateEvent, Title: "x", Start: "friday 3pm", Duration: "a while"},
			wantKind:   ErrorUnparseableTime,
			wantFields: []string{FieldDuration},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, err := tt.validator.Validate(ctx, tt.intent, fixedNow, nil)
			require.Error(t, err)
			assert.Nil(t, action)
			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.wantKind, e.Kind)
			assert.Equal(t, tt.wantFields, e.Fields)
		})
	}
}

func TestValidator_Edit(t *testing.T) {
	v := newTestValidator()
	ctx := context.Background()
	target := &EventSummary{
		ID:     "evt-1",
		Title:  "Team meeting",
		Window: TimeWindow{Start: at(19, 10, 0), End: at(19, 11, 0)},
	}

	t.Run("Edit_ClockOnlyKeepsDay", func(t *testing.T) {
		action, err := v.Validate(ctx, Intent{Kind: KindEditEvent, Start: "4 PM"}, fixedNow, target)
		require.NoError(t, err)
		assert.True(t, at(19, 16, 0).Equal(action.Window.Start))
		assert.True(t, at(19, 17, 0).Equal(action.Window.End))
		require.NotNil(t, action.Changes)
		assert.True(t, at(19, 16, 0).Equal(*action.Changes.Start))
		assert.Equal(t, "evt-1", action.Target.ID)
	})

	t.Run("Edit_DayOnlyKeepsTime", func(t *testing.T) {
		action, err := v.Validate(ctx, Intent{Kind: KindEditEvent, Start: "thursday"}, fixedNow, target)
		require.NoError(t, err)
		assert.True(t, at(18, 10, 0).Equal(action.Window.Start))
		assert.True(t, at(18, 11, 0).Equal(action.Window.End))
	})

	t.Run("Edit_Rename", func(t *testing.T) {
		action, err := v.Validate(ctx, Intent{Kind: KindEditEvent, Title: "Design review"}, fixedNow, target)
		require.NoError(t, err)
		assert.Equal(t, "Design review", action.Title)
		assert.Nil(t, action.Changes.Start)
	})

	t.Run("Edit_GuestsOnly", func(t *testing.T) {
		action, err := v.Validate(ctx, Intent{Kind: KindEditEvent, Guests: []string{"bob@example.com"}}, fixedNow, target)
		require.NoError(t, err)
		assert.Equal(t, []string{"bob@example.com"}, action.Guests)
		require.NotNil(t, action.Changes.Guests)
		assert.Equal(t, []string{"bob@example.com"}, *action.Changes.Guests)
		assert.True(t, target.Window.Start.Equal(action.Window.Start))
	})

	t.Run("Edit_NoChanges", func(t *testing.T) {
		_, err := v.Validate(ctx, Intent{Kind: KindEditEvent}, fixedNow, target)
		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, []string{FieldChanges}, e.Fields)
	})

	t.Run("Edit_NoTarget", func(t *testing.T) {
		_, err := v.Validate(ctx, Intent{Kind: KindEditEvent, Start: "4 PM"}, fixedNow, nil)
		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, []string{FieldTarget}, e.Fields)
	})
}

func TestValidator_Delete(t *testing.T) {
	v := newTestValidator()

	_, err := v.Validate(context.Background(), Intent{Kind: KindDeleteEvent}, fixedNow, nil)
	assert.True(t, IsKind(err, ErrorMissingSlots))

	target := &EventSummary{ID: "evt-1", Title: "x", Window: TimeWindow{Start: at(19, 10, 0), End: at(19, 11, 0)}}
	action, err := v.Validate(context.Background(), Intent{Kind: KindDeleteEvent}, fixedNow, target)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", action.Target.ID)
}

func TestValidator_List(t *testing.T) {
	v := newTestValidator()
	ctx := context.Background()

	t.Run("List_DefaultsToNextSevenDays", func(t *testing.T) {
		action, err := v.Validate(ctx, Intent{Kind: KindListEvents}, fixedNow, nil)
		require.NoError(t, err)
		assert.True(t, fixedNow.Equal(action.Window.Start))
		assert.Equal(t, 7*24*time.Hour, action.Window.Duration())
	})

	t.Run("List_Range", func(t *testing.T) {
		action, err := v.Validate(ctx, Intent{Kind: KindListEvents, Range: "tomorrow"}, fixedNow, nil)
		require.NoError(t, err)
		assert.True(t, at(16, 0, 0).Equal(action.Window.Start))
		assert.True(t, at(17, 0, 0).Equal(action.Window.End))
	})
}

func TestValidator_Availability(t *testing.T) {
	v := newTestValidator()
	ctx := context.Background()

	_, err := v.Validate(ctx, Intent{Kind: KindCheckAvailability}, fixedNow, nil)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, []string{FieldRange}, e.Fields)

	action, err := v.Validate(ctx, Intent{Kind: KindCheckAvailability, Start: "friday"}, fixedNow, nil)
	require.NoError(t, err)
	assert.True(t, at(19, 0, 0).Equal(action.Window.Start))
	assert.Equal(t, 24*time.Hour, action.Window.Duration())

	action, err = v.Validate(ctx, Intent{Kind: KindCheckAvailability, Start: "tomorrow 3pm", Duration: "30 minutes"}, fixedNow, nil)
	require.NoError(t, err)
	assert.True(t, at(16, 15, 0).Equal(action.Window.Start))
	assert.True(t, at(16, 15, 30).Equal(action.Window.End))
}

// Whatever the input, a returned action never lacks a required field.
func TestValidator_NeverReturnsIncompleteAction(t *testing.T) {
	v := newTestValidator()
	intents := []Intent{
		{Kind: KindCreateEvent},
		{Kind: KindCreateEvent, Title: "x"},
		{Kind: KindCreateEvent, Start: "tomorrow 2pm"},
		{Kind: KindCreateEvent, Title: "x", Start: "tomorrow 2pm", End: "1pm"},
		{Kind: KindEditEvent},
		{Kind: KindDeleteEvent},
		{Kind: KindListEvents, Range: "gibberish"},
		{Kind: KindCheckAvailability},
		{Kind: Kind("dance")},
	}
	for _, intent := range intents {
		action, err := v.Validate(context.Background(), intent, fixedNow, nil)
		if err == nil {
			assert.Empty(t, action.MissingFields(), "intent %+v", intent)
		} else {
			assert.Nil(t, action)
		}
	}
}
