package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aischedule "github.com/hrygo/calbook/plugin/ai/schedule"
)

func event(id string, w aischedule.TimeWindow) aischedule.EventSummary {
	return aischedule.EventSummary{ID: id, Title: "Event " + id, Window: w}
}

func TestConflictChecker_Check(t *testing.T) {
	checker := NewConflictChecker(ist)
	now := at(15, 9, 0)

	tests := []struct {
		name      string
		candidate aischedule.TimeWindow
		existing  []aischedule.EventSummary
		excludeID string
		wantKind  aischedule.ConflictKind
		wantIDs   []string
	}{
		{
			name:      "Check_Empty",
			candidate: window(16, 14, 15),
			wantKind:  aischedule.NoConflict,
		},
		{
			name:      "Check_TouchingIsNotConflict",
			candidate: window(16, 14, 15),
			existing:  []aischedule.EventSummary{event("a", window(16, 13, 14)), event("b", window(16, 15, 16))},
			wantKind:  aischedule.NoConflict,
		},
		{
			name:      "Check_Partial",
			candidate: window(16, 14, 16),
			existing:  []aischedule.EventSummary{event("a", window(16, 15, 17))},
			wantKind:  aischedule.PartialOverlap,
			wantIDs:   []string{"a"},
		},
		{
			name:      "Check_CandidateInsideEvent",
			candidate: window(16, 14, 15),
			existing:  []aischedule.EventSummary{event("a", window(16, 13, 17))},
			wantKind:  aischedule.FullOverlap,
			wantIDs:   []string{"a"},
		},
		{
			name:      "Check_CandidateContainsOnlyEvent",
			candidate: window(16, 13, 17),
			existing:  []aischedule.EventSummary{event("a", window(16, 14, 15))},
			wantKind:  aischedule.FullOverlap,
			wantIDs:   []string{"a"},
		},
		{
			name:      "Check_CandidateContainsTwoEvents",
			candidate: window(16, 13, 17),
			existing:  []aischedule.EventSummary{event("a", window(16, 14, 15)), event("b", window(16, 15, 16))},
			wantKind:  aischedule.PartialOverlap,
			wantIDs:   []string{"a", "b"},
		},
		{
			name:      "Check_IdenticalWindow",
			candidate: window(16, 14, 15),
			existing:  []aischedule.EventSummary{event("a", window(16, 14, 15))},
			wantKind:  aischedule.FullOverlap,
			wantIDs:   []string{"a"},
		},
		{
			name:      "Check_ExcludesEditedEvent",
			candidate: window(16, 14, 15),
			existing:  []aischedule.EventSummary{event("self", window(16, 13, 15))},
			excludeID: "self",
			wantKind:  aischedule.NoConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := checker.Check(tt.candidate, tt.existing, tt.excludeID, now)
			require.NotNil(t, result)
			assert.Equal(t, tt.wantKind, result.Kind)

			var ids []string
			for _, e := range result.Events {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, tt.wantKind != aischedule.NoConflict, result.HasConflict())
		})
	}
}

func TestConflictChecker_Alternatives(t *testing.T) {
	checker := NewConflictChecker(ist)
	now := at(15, 9, 0)

	existing := []aischedule.EventSummary{
		event("a", window(16, 10, 12)),
		event("b", window(16, 13, 14)),
	}
	result := checker.Check(window(16, 11, 12), existing, "", now)
	require.True(t, result.HasConflict())
	require.Len(t, result.Alternatives, MaxAlternatives)

	// Closest to 11:00 first: 12:00 (1h), 09:00 (2h), 08:30 (2h30m).
	assert.True(t, result.Alternatives[0].Start.Equal(at(16, 12, 0)))
	assert.True(t, result.Alternatives[1].Start.Equal(at(16, 9, 0)))
	assert.True(t, result.Alternatives[2].Start.Equal(at(16, 8, 30)))

	for _, alt := range result.Alternatives {
		assert.Equal(t, window(16, 11, 12).Duration(), alt.Duration())
		for _, e := range existing {
			assert.False(t, alt.Overlaps(e.Window), "alternative %v overlaps %s", alt, e.ID)
		}
	}
}

func TestConflictChecker_AlternativesSkipPast(t *testing.T) {
	checker := NewConflictChecker(ist)
	now := at(16, 18, 10)

	result := checker.Check(window(16, 19, 20), []aischedule.EventSummary{event("a", window(16, 18, 20))}, "", now)
	require.True(t, result.HasConflict())
	assert.Empty(t, result.Alternatives)
}

func TestConflictChecker_SearchWindow(t *testing.T) {
	checker := NewConflictChecker(ist)

	w := checker.SearchWindow(window(16, 14, 15))
	assert.True(t, w.Start.Equal(at(16, 8, 0)))
	assert.True(t, w.End.Equal(at(16, 20, 0)))

	late := aischedule.TimeWindow{Start: at(16, 21, 0), End: at(16, 23, 0)}
	w = checker.SearchWindow(late)
	assert.True(t, w.Start.Equal(at(16, 8, 0)))
	assert.True(t, w.End.Equal(at(16, 23, 0)))
}
