package aitime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Monday 2024-01-15 09:00 IST.
var fixedNow = time.Date(2024, 1, 15, 9, 0, 0, 0, IST)

func TestParser_Normalize(t *testing.T) {
	parser := NewParser(IST)

	tests := []struct {
		name  string
		input string
		want  string // RFC 3339 in IST
	}{
		{"Tomorrow_2PM", "tomorrow at 2 PM", "2024-01-16T14:00:00+05:30"},
		{"Tomorrow_2PM_Compact", "Tomorrow 2pm", "2024-01-16T14:00:00+05:30"},
		{"Friday_4PM", "Friday at 4 PM", "2024-01-19T16:00:00+05:30"},
		{"Weekday_TodayFuture", "monday 10am", "2024-01-15T10:00:00+05:30"},
		{"Weekday_TodayPast", "monday 8am", "2024-01-22T08:00:00+05:30"},
		{"NextWeekday_Today", "next monday at 10:30", "2024-01-22T10:30:00+05:30"},
		{"InTwoHours", "in 2 hours", "2024-01-15T11:00:00+05:30"},
		{"ThirtyMinutesFromNow", "30 minutes from now", "2024-01-15T09:30:00+05:30"},
		{"ClockOnly_Future", "2 PM", "2024-01-15T14:00:00+05:30"},
		{"ClockOnly_PastRollsForward", "8 am", "2024-01-16T08:00:00+05:30"},
		{"BareHour_Afternoon", "at 3", "2024-01-15T15:00:00+05:30"},
		{"NoonTomorrow", "noon tomorrow", "2024-01-16T12:00:00+05:30"},
		{"Tonight", "tonight", "2024-01-15T20:00:00+05:30"},
		{"MonthDay", "Jan 20 at 3:30 pm", "2024-01-20T15:30:00+05:30"},
		{"DayMonthYear", "5th of March 2024 14:00", "2024-03-05T14:00:00+05:30"},
		{"ISODateWithClock", "2024-01-16 at 2pm", "2024-01-16T14:00:00+05:30"},
		{"ISOLocal", "2024-01-16 14:00", "2024-01-16T14:00:00+05:30"},
		{"RFC3339_UTC", "2024-01-16T14:00:00Z", "2024-01-16T19:30:00+05:30"},
		{"ExplicitZone_UTC", "2 PM UTC", "2024-01-15T19:30:00+05:30"},
		{"ExplicitOffset", "tomorrow 9am +00:00", "2024-01-16T14:30:00+05:30"},
		{"Now", "now", "2024-01-15T09:00:00+05:30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parser.Normalize(tt.input, fixedNow)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Format(time.RFC3339))
		})
	}
}

func TestParser_Normalize_Errors(t *testing.T) {
	parser := NewParser(IST)

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"Empty", "  ", ErrUnparseableTime},
		{"Gibberish", "banana", ErrUnparseableTime},
		{"InvalidClock", "13 pm", ErrUnparseableTime},
		{"InvalidDate", "Feb 30 at 2pm", ErrUnparseableTime},
		{"TrailingWords", "tomorrow at 2pm with bob", ErrUnparseableTime},
		{"DateWithoutTime", "tomorrow", ErrAmbiguousTime},
		{"WeekdayWithoutTime", "Friday", ErrAmbiguousTime},
		{"VagueDayPart", "tomorrow morning", ErrAmbiguousTime},
		{"RelativeAndClock", "in 2 hours at 5pm", ErrAmbiguousTime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parser.Normalize(tt.input, fixedNow)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParser_NormalizeOn(t *testing.T) {
	parser := NewParser(IST)
	anchor := time.Date(2024, 1, 19, 10, 0, 0, 0, IST)

	t.Run("ClockOnly_UsesAnchorDay", func(t *testing.T) {
		got, err := parser.NormalizeOn("4 PM", fixedNow, anchor)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 1, 19, 16, 0, 0, 0, IST), got)
	})

	t.Run("ClockOnly_EarlierThanNowStaysOnAnchor", func(t *testing.T) {
		got, err := parser.NormalizeOn("8 am", fixedNow, anchor)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 1, 19, 8, 0, 0, 0, IST), got)
	})

	t.Run("ExplicitDate_IgnoresAnchor", func(t *testing.T) {
		got, err := parser.NormalizeOn("tomorrow 4pm", fixedNow, anchor)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 1, 16, 16, 0, 0, 0, IST), got)
	})
}

func TestParser_NormalizeWindow(t *testing.T) {
	parser := NewParser(IST)
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, IST) }

	tests := []struct {
		name      string
		input     string
		wantStart time.Time
		wantEnd   time.Time
	}{
		{"Today", "today", day(15), day(16)},
		{"Friday", "Friday", day(19), day(20)},
		{"OnFriday", "on friday", day(19), day(20)},
		{"ThisWeek", "this week", day(15), day(22)},
		{"NextWeek", "next week", day(22), day(29)},
		{"Weekend", "this weekend", day(20), day(22)},
		{"Next7Days", "next 7 days", fixedNow, fixedNow.AddDate(0, 0, 7)},
		{"NextTwoWeeks", "the next two weeks", fixedNow, fixedNow.AddDate(0, 0, 14)},
		{"ThisMonth", "this month", day(15), time.Date(2024, 2, 1, 0, 0, 0, 0, IST)},
		{"TomorrowMorning", "tomorrow morning", day(16).Add(8 * time.Hour), day(16).Add(12 * time.Hour)},
		{"SingleInstant", "tomorrow at 2pm", day(16).Add(14 * time.Hour), day(16).Add(15 * time.Hour)},
		{"ExplicitRange", "tomorrow 2pm to 4pm", day(16).Add(14 * time.Hour), day(16).Add(16 * time.Hour)},
		{"DayRange", "from monday to wednesday", day(15), day(18)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parser.NormalizeWindow(tt.input, fixedNow)
			require.NoError(t, err)
			assert.True(t, tt.wantStart.Equal(got.Start), "start: want %s got %s", tt.wantStart, got.Start)
			assert.True(t, tt.wantEnd.Equal(got.End), "end: want %s got %s", tt.wantEnd, got.End)
		})
	}

	t.Run("InvertedRange", func(t *testing.T) {
		_, err := parser.NormalizeWindow("tomorrow 4pm to 2pm", fixedNow)
		assert.ErrorIs(t, err, ErrAmbiguousTime)
	})

	t.Run("Unparseable", func(t *testing.T) {
		_, err := parser.NormalizeWindow("whenever", fixedNow)
		assert.ErrorIs(t, err, ErrUnparseableTime)
	})
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"1 hour", time.Hour},
		{"for 1 hour", time.Hour},
		{"an hour", time.Hour},
		{"half an hour", 30 * time.Minute},
		{"90 minutes", 90 * time.Minute},
		{"1.5 hours", 90 * time.Minute},
		{"2 hrs", 2 * time.Hour},
		{"1 hour 30 minutes", 90 * time.Minute},
		{"1h30m", 90 * time.Minute},
		{"45m", 45 * time.Minute},
		{"two hours", 2 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "forever", "0m", "1 month"} {
		t.Run("Invalid_"+bad, func(t *testing.T) {
			_, err := ParseDuration(bad)
			assert.ErrorIs(t, err, ErrUnparseableTime)
		})
	}
}
