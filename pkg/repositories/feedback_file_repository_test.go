package repositories

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/nlq2sql/pkg/apperrors"
	"github.com/ekaya-inc/nlq2sql/pkg/models"
)

func newTestFeedback(correct bool, createdAt time.Time) *models.Feedback {
	original := models.EntityTable{
		models.CategoryGender: {{
			BeginOffset: 9, EndOffset: 14, Text: "women",
			Placeholder: "<ARG-GENDER><0>",
			Options:     []models.Option{{Code: "F", Score: 1}},
			QueryArg:    "F",
		}},
		models.CategoryCondition: {{
			BeginOffset: 20, EndOffset: 28, Text: "diabetes",
			Placeholder: "<ARG-CONDITION><0>",
			Options:     []models.Option{models.SentinelOption},
			QueryArg:    models.SentinelQueryArg,
		}},
	}
	corrected := original.Clone()
	corrected[models.CategoryCondition][0].QueryArg = "E11"

	return &models.Feedback{
		CreatedAt:           createdAt,
		Question:            "How many women with diabetes?",
		GeneralizedQuestion: "How many <ARG-GENDER><0> with <ARG-CONDITION><0>?",
		OriginalEntities:    original,
		CorrectedEntities:   corrected,
		SQLSkeleton:         "SELECT COUNT(*) FROM <SCHEMA>.person",
		RenderedSQL:         "SELECT COUNT(*) FROM cmsdesynpuf23m.person",
		Correct:             correct,
	}
}

func TestFileFeedbackRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "feedback")
	repo, err := NewFileFeedbackRepository(dir)
	require.NoError(t, err)

	fb := newTestFeedback(true, time.Time{})
	require.NoError(t, repo.Create(ctx, fb))
	require.NotEqual(t, uuid.Nil, fb.ID)
	require.False(t, fb.CreatedAt.IsZero())

	_, err = os.Stat(filepath.Join(dir, fb.ID.String()+".json"))
	require.NoError(t, err)

	got, err := repo.Get(ctx, fb.ID)
	require.NoError(t, err)
	assert.Equal(t, fb.Question, got.Question)
	assert.True(t, got.Correct)
	assert.Equal(t, "N/A", got.OriginalEntities[models.CategoryCondition][0].QueryArg)
	assert.Equal(t, "E11", got.CorrectedEntities[models.CategoryCondition][0].QueryArg)
	assert.Equal(t, "F", got.CorrectedEntities[models.CategoryGender][0].Options[0].Code)
	assert.True(t, fb.CreatedAt.Equal(got.CreatedAt))
}

func TestFileFeedbackRepository_GetMissing(t *testing.T) {
	repo, err := NewFileFeedbackRepository(t.TempDir())
	require.NoError(t, err)

	_, err = repo.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestFileFeedbackRepository_List(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, err := NewFileFeedbackRepository(dir)
	require.NoError(t, err)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, correct := range []bool{true, false, true, true} {
		require.NoError(t, repo.Create(ctx, newTestFeedback(correct, base.Add(time.Duration(i)*time.Hour))))
	}
	// stray files are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.json"), []byte("{"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("x"), 0o600))

	all, err := repo.List(ctx, models.FeedbackFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.True(t, all[0].CreatedAt.After(all[3].CreatedAt), "newest first")

	correct := true
	onlyCorrect, err := repo.List(ctx, models.FeedbackFilter{Correct: &correct})
	require.NoError(t, err)
	assert.Len(t, onlyCorrect, 3)

	since := base.Add(2 * time.Hour)
	recent, err := repo.List(ctx, models.FeedbackFilter{Since: &since})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	limited, err := repo.List(ctx, models.FeedbackFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.True(t, limited[0].CreatedAt.Equal(base.Add(3*time.Hour)))
}

func TestFeedbackListLimit(t *testing.T) {
	assert.Equal(t, defaultFeedbackListLimit, feedbackListLimit(0))
	assert.Equal(t, 10, feedbackListLimit(10))
	assert.Equal(t, maxFeedbackListLimit, feedbackListLimit(100000))
}

func TestMarshalEntityTable_Nil(t *testing.T) {
	data, err := marshalEntityTable(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))
}
