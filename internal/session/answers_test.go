package session

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/proctorly/exam-api/internal/models"
)

func TestAnswerStoreSeedsStarterCode(t *testing.T) {
	store := NewAnswerStore([]models.Question{
		{ID: 1, Kind: models.QuestionKindChoice, MaxPoints: 5},
		{ID: 2, Kind: models.QuestionKindCode, MaxPoints: 10, StarterCode: "print('hello')"},
	})

	choice, ok := store.Get(1)
	require.True(t, ok)
	require.Empty(t, choice.SourceText)

	code, ok := store.Get(2)
	require.True(t, ok)
	require.Equal(t, "print('hello')", code.SourceText)
}

func TestAnswerStoreGradingOverwritesAndClamps(t *testing.T) {
	store := NewAnswerStore([]models.Question{
		{ID: 7, Kind: models.QuestionKindCode, MaxPoints: 10},
	})

	store.ApplyGradingResult(7, models.VerdictOK, 25, "good", nil)
	state, _ := store.Get(7)
	require.Equal(t, 10, state.PointsEarned)

	store.ApplyGradingResult(7, models.VerdictRuntimeError, -3, "broke", nil)
	state, _ = store.Get(7)
	require.Zero(t, state.PointsEarned)
	require.Equal(t, models.VerdictRuntimeError, state.Verdict)
	require.Equal(t, "broke", state.Feedback)

	// Points replace the previous value, never accumulate.
	store.ApplyGradingResult(7, models.VerdictOK, 6, "fixed", map[string]interface{}{"hint": "edge cases"})
	require.Equal(t, 6, store.TotalPoints())
}

func TestAnswerStoreSnapshotPreservesQuestionOrder(t *testing.T) {
	store := NewAnswerStore([]models.Question{
		{ID: 3, Kind: models.QuestionKindChoice, MaxPoints: 5},
		{ID: 1, Kind: models.QuestionKindCode, MaxPoints: 10},
		{ID: 2, Kind: models.QuestionKindChoice, MaxPoints: 5},
	})

	store.SetChoice(3, "A")
	store.SetSource(1, "x = 1")
	store.SetChoice(2, "D")

	snapshot := store.Snapshot()
	require.Len(t, snapshot, 3)
	require.Equal(t, uint(3), snapshot[0].QuestionID)
	require.Equal(t, uint(1), snapshot[1].QuestionID)
	require.Equal(t, uint(2), snapshot[2].QuestionID)
	require.Equal(t, "A", snapshot[0].SelectedOption)
	require.Equal(t, "x = 1", snapshot[1].SourceText)
}

func TestAnswerStoreIgnoresUnknownQuestion(t *testing.T) {
	store := NewAnswerStore([]models.Question{{ID: 1, Kind: models.QuestionKindChoice, MaxPoints: 5}})

	store.SetChoice(99, "A")
	store.ApplyGradingResult(99, models.VerdictOK, 5, "", nil)

	_, ok := store.Get(99)
	require.False(t, ok)
	require.Zero(t, store.TotalPoints())
}
