package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/nlq2sql/pkg/apperrors"
	"github.com/ekaya-inc/nlq2sql/pkg/metrics"
	"github.com/ekaya-inc/nlq2sql/pkg/models"
	"github.com/ekaya-inc/nlq2sql/pkg/repositories"
)

// FeedbackService records verdicts on translated questions.
type FeedbackService interface {
	Record(ctx context.Context, feedback *models.Feedback) error
	Get(ctx context.Context, id uuid.UUID) (*models.Feedback, error)
	List(ctx context.Context, filter models.FeedbackFilter) ([]*models.Feedback, error)
}

type feedbackService struct {
	repo   repositories.FeedbackRepository
	logger *zap.Logger
}

func NewFeedbackService(repo repositories.FeedbackRepository, logger *zap.Logger) FeedbackService {
	return &feedbackService{
		repo:   repo,
		logger: logger.Named("feedback-service"),
	}
}

var _ FeedbackService = (*feedbackService)(nil)

func (s *feedbackService) Record(ctx context.Context, feedback *models.Feedback) error {
	if feedback == nil || strings.TrimSpace(feedback.Question) == "" {
		return fmt.Errorf("%w: feedback requires the original question", apperrors.ErrInvalidInput)
	}
	// Without corrections the corrected table is the original one.
	if feedback.CorrectedEntities == nil {
		feedback.CorrectedEntities = feedback.OriginalEntities.Clone()
	}

	if err := s.repo.Create(ctx, feedback); err != nil {
		s.logger.Error("Failed to record feedback", zap.Error(err))
		return err
	}
	metrics.RecordFeedback(feedback.Correct)

	s.logger.Info("Recorded feedback",
		zap.String("feedback_id", feedback.ID.String()),
		zap.Bool("correct", feedback.Correct),
		zap.Int("original_entities", feedback.OriginalEntities.Len()),
		zap.Int("corrected_entities", feedback.CorrectedEntities.Len()))
	return nil
}

func (s *feedbackService) Get(ctx context.Context, id uuid.UUID) (*models.Feedback, error) {
	return s.repo.Get(ctx, id)
}

func (s *feedbackService) List(ctx context.Context, filter models.FeedbackFilter) ([]*models.Feedback, error) {
	feedback, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list feedback", zap.Error(err))
		return nil, err
	}
	return feedback, nil
}
