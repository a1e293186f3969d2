package models

import (
	"time"

	"github.com/google/uuid"
)

// Feedback records a user's verdict on a translated question, together with the entity
// table before and after any human corrections.
type Feedback struct {
	ID                  uuid.UUID   `json:"id"`
	CreatedAt           time.Time   `json:"time"`
	Question            string      `json:"input"`
	GeneralizedQuestion string      `json:"generalized_input,omitempty"`
	OriginalEntities    EntityTable `json:"args original"`
	CorrectedEntities   EntityTable `json:"args corrected"`
	SQLSkeleton         string      `json:"sql_skeleton,omitempty"`
	RenderedSQL         string      `json:"rendered_sql,omitempty"`
	Correct             bool        `json:"correct"`
}

// FeedbackFilter narrows a feedback listing. Zero values match everything.
type FeedbackFilter struct {
	Correct *bool
	Since   *time.Time
	Limit   int
}
