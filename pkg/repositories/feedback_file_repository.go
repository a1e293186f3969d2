package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/ekaya-inc/nlq2sql/pkg/apperrors"
	"github.com/ekaya-inc/nlq2sql/pkg/models"
)

// fileFeedbackRepository writes one JSON document per feedback record, named <id>.json.
// Used when no feedback database is configured.
type fileFeedbackRepository struct {
	dir string
}

// NewFileFeedbackRepository returns a repository rooted at dir, creating it if needed.
func NewFileFeedbackRepository(dir string) (FeedbackRepository, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create feedback directory: %w", err)
	}
	return &fileFeedbackRepository{dir: dir}, nil
}

var _ FeedbackRepository = (*fileFeedbackRepository)(nil)

func (r *fileFeedbackRepository) Create(ctx context.Context, feedback *models.Feedback) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prepareFeedback(feedback)

	data, err := json.MarshalIndent(feedback, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal feedback: %w", err)
	}

	tmp, err := os.CreateTemp(r.dir, ".feedback-*")
	if err != nil {
		return fmt.Errorf("failed to create feedback file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write feedback file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write feedback file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path(feedback.ID)); err != nil {
		return fmt.Errorf("failed to create feedback: %w", err)
	}
	return nil
}

func (r *fileFeedbackRepository) Get(ctx context.Context, id uuid.UUID) (*models.Feedback, error) {
	feedback, err := r.read(r.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("feedback %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}
	return feedback, nil
}

func (r *fileFeedbackRepository) List(ctx context.Context, filter models.FeedbackFilter) ([]*models.Feedback, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}

	var result []*models.Feedback
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if _, err := uuid.Parse(strings.TrimSuffix(name, ".json")); err != nil {
			continue
		}

		feedback, err := r.read(filepath.Join(r.dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read feedback %s: %w", name, err)
		}
		if filter.Correct != nil && feedback.Correct != *filter.Correct {
			continue
		}
		if filter.Since != nil && feedback.CreatedAt.Before(*filter.Since) {
			continue
		}
		result = append(result, feedback)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit := feedbackListLimit(filter.Limit); len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *fileFeedbackRepository) path(id uuid.UUID) string {
	return filepath.Join(r.dir, id.String()+".json")
}

func (r *fileFeedbackRepository) read(path string) (*models.Feedback, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var feedback models.Feedback
	if err := json.Unmarshal(data, &feedback); err != nil {
		return nil, err
	}
	return &feedback, nil
}
