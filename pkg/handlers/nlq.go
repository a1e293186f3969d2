package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/nlq2sql/pkg/apperrors"
	"github.com/ekaya-inc/nlq2sql/pkg/models"
	"github.com/ekaya-inc/nlq2sql/pkg/placeholder"
	"github.com/ekaya-inc/nlq2sql/pkg/services"
)

// DetectRequest asks for the entities of a question.
type DetectRequest struct {
	Question string `json:"question"`
}

// ProcessRequest asks for a detected table to be disambiguated and numbered.
type ProcessRequest struct {
	Entities models.EntityTable      `json:"entities"`
	Start    map[models.Category]int `json:"start,omitempty"`
}

// RewriteRequest asks for a question's generalized form.
type RewriteRequest struct {
	Question string             `json:"question"`
	Entities models.EntityTable `json:"entities"`
}

// RenderRequest asks for a SQL skeleton to be expanded.
type RenderRequest struct {
	SQLSkeleton string             `json:"sql_skeleton"`
	Entities    models.EntityTable `json:"entities"`
}

// QueryRequest runs the whole pipeline.
type QueryRequest struct {
	Question string `json:"question"`
	Execute  bool   `json:"execute"`
}

// AddEntityRequest highlights a missed name in the question. Start is the "next" map of
// the previous response for the same question.
type AddEntityRequest struct {
	Question string                  `json:"question"`
	Entities models.EntityTable      `json:"entities"`
	Start    map[models.Category]int `json:"start,omitempty"`
	Category string                  `json:"category"`
	Text     string                  `json:"text"`
}

// RemoveEntityRequest drops a wrongly detected entity.
type RemoveEntityRequest struct {
	Question string                  `json:"question,omitempty"`
	Entities models.EntityTable      `json:"entities"`
	Start    map[models.Category]int `json:"start,omitempty"`
	Text     string                  `json:"text"`
}

// OverrideRequest replaces the query argument of one entity.
type OverrideRequest struct {
	Entities    models.EntityTable `json:"entities"`
	Placeholder string             `json:"placeholder"`
	QueryArg    string             `json:"query_arg"`
}

// EntitiesResponse carries an entity table and, when the question is known, its
// generalized form. Next holds the first free ordinal per category; clients send it back
// as "start" on their next correction.
type EntitiesResponse struct {
	Entities            models.EntityTable      `json:"entities"`
	GeneralizedQuestion string                  `json:"generalized_question,omitempty"`
	Next                map[models.Category]int `json:"next,omitempty"`
}

// RewriteResponse carries a generalized question.
type RewriteResponse struct {
	GeneralizedQuestion string `json:"generalized_question"`
}

// RenderResponse carries rendered SQL.
type RenderResponse struct {
	RenderedSQL string `json:"rendered_sql"`
}

// FeedbackResponse acknowledges a stored feedback record.
type FeedbackResponse struct {
	ID uuid.UUID `json:"id"`
}

// NLQHandler exposes the question pipeline, corrections and feedback over HTTP.
type NLQHandler struct {
	pipeline    services.PipelineService
	corrections services.CorrectionService
	feedback    services.FeedbackService
	logger      *zap.Logger
}

// NewNLQHandler creates the pipeline handler.
func NewNLQHandler(pipeline services.PipelineService, corrections services.CorrectionService, feedback services.FeedbackService, logger *zap.Logger) *NLQHandler {
	return &NLQHandler{
		pipeline:    pipeline,
		corrections: corrections,
		feedback:    feedback,
		logger:      logger.Named("nlq-handler"),
	}
}

// RegisterRoutes registers the pipeline routes on the given mux.
func (h *NLQHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/v1"
	mux.HandleFunc("POST "+base+"/detect", h.Detect)
	mux.HandleFunc("POST "+base+"/process", h.Process)
	mux.HandleFunc("POST "+base+"/rewrite", h.Rewrite)
	mux.HandleFunc("POST "+base+"/render", h.Render)
	mux.HandleFunc("POST "+base+"/query", h.Query)
	mux.HandleFunc("POST "+base+"/entities/add", h.AddEntity)
	mux.HandleFunc("POST "+base+"/entities/remove", h.RemoveEntity)
	mux.HandleFunc("POST "+base+"/entities/override", h.OverrideQueryArg)
	mux.HandleFunc("POST "+base+"/feedback", h.RecordFeedback)
	mux.HandleFunc("GET "+base+"/feedback", h.ListFeedback)
	mux.HandleFunc("GET "+base+"/feedback/{id}", h.GetFeedback)
}

// Detect handles POST /api/v1/detect.
func (h *NLQHandler) Detect(w http.ResponseWriter, r *http.Request) {
	var req DetectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	table, err := h.pipeline.Detect(r.Context(), req.Question)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.respond(w, EntitiesResponse{Entities: table})
}

// Process handles POST /api/v1/process.
func (h *NLQHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := validateEntities(req.Entities); err != nil {
		writeError(w, h.logger, err)
		return
	}

	table, err := h.pipeline.Process(r.Context(), req.Entities, req.Start)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.respond(w, EntitiesResponse{
		Entities: table,
		Next:     placeholder.Advance(req.Start, placeholder.NextOrdinals(table)),
	})
}

// Rewrite handles POST /api/v1/rewrite.
func (h *NLQHandler) Rewrite(w http.ResponseWriter, r *http.Request) {
	var req RewriteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := validateEntities(req.Entities); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.respond(w, RewriteResponse{GeneralizedQuestion: h.pipeline.Rewrite(req.Question, req.Entities)})
}

// Render handles POST /api/v1/render.
func (h *NLQHandler) Render(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if strings.TrimSpace(req.SQLSkeleton) == "" {
		writeError(w, h.logger, fmt.Errorf("%w: sql_skeleton is required", apperrors.ErrInvalidInput))
		return
	}
	if err := validateEntities(req.Entities); err != nil {
		writeError(w, h.logger, err)
		return
	}

	rendered, err := h.pipeline.Render(req.SQLSkeleton, req.Entities)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.respond(w, RenderResponse{RenderedSQL: rendered})
}

// Query handles POST /api/v1/query, running the pipeline end to end.
func (h *NLQHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.pipeline.Run(r.Context(), req.Question, req.Execute)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.respond(w, result)
}

// AddEntity handles POST /api/v1/entities/add.
func (h *NLQHandler) AddEntity(w http.ResponseWriter, r *http.Request) {
	var req AddEntityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	category, err := models.ParseCategory(req.Category)
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: %w", apperrors.ErrUnknownCategory, err))
		return
	}
	if err := validateEntities(req.Entities); err != nil {
		writeError(w, h.logger, err)
		return
	}

	table, next, err := h.corrections.AddEntity(r.Context(), req.Question, req.Entities, req.Start, category, req.Text)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.respond(w, EntitiesResponse{
		Entities:            table,
		GeneralizedQuestion: h.pipeline.Rewrite(req.Question, table),
		Next:                next,
	})
}

// RemoveEntity handles POST /api/v1/entities/remove.
func (h *NLQHandler) RemoveEntity(w http.ResponseWriter, r *http.Request) {
	var req RemoveEntityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := validateEntities(req.Entities); err != nil {
		writeError(w, h.logger, err)
		return
	}

	table, next, err := h.corrections.RemoveEntity(req.Entities, req.Start, req.Text)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp := EntitiesResponse{Entities: table, Next: next}
	if req.Question != "" {
		resp.GeneralizedQuestion = h.pipeline.Rewrite(req.Question, table)
	}
	h.respond(w, resp)
}

// OverrideQueryArg handles POST /api/v1/entities/override.
func (h *NLQHandler) OverrideQueryArg(w http.ResponseWriter, r *http.Request) {
	var req OverrideRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := validateEntities(req.Entities); err != nil {
		writeError(w, h.logger, err)
		return
	}

	table, err := h.corrections.OverrideQueryArg(req.Entities, req.Placeholder, req.QueryArg)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.respond(w, EntitiesResponse{Entities: table})
}

// RecordFeedback handles POST /api/v1/feedback. The body uses the feedback log format.
func (h *NLQHandler) RecordFeedback(w http.ResponseWriter, r *http.Request) {
	var fb models.Feedback
	if err := decodeJSON(w, r, &fb); err != nil {
		writeError(w, h.logger, err)
		return
	}
	// Clients never choose record identity.
	fb.ID = uuid.Nil

	if err := h.feedback.Record(r.Context(), &fb); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := WriteJSON(w, http.StatusCreated, FeedbackResponse{ID: fb.ID}); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// ListFeedback handles GET /api/v1/feedback?correct=&limit=.
func (h *NLQHandler) ListFeedback(w http.ResponseWriter, r *http.Request) {
	var filter models.FeedbackFilter

	if v := r.URL.Query().Get("correct"); v != "" {
		correct, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, h.logger, fmt.Errorf("%w: correct must be a boolean", apperrors.ErrInvalidInput))
			return
		}
		filter.Correct = &correct
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, h.logger, fmt.Errorf("%w: limit must be a non-negative integer", apperrors.ErrInvalidInput))
			return
		}
		filter.Limit = limit
	}

	records, err := h.feedback.List(r.Context(), filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if records == nil {
		records = []*models.Feedback{}
	}
	h.respond(w, records)
}

// GetFeedback handles GET /api/v1/feedback/{id}.
func (h *NLQHandler) GetFeedback(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: invalid feedback id", apperrors.ErrInvalidInput))
		return
	}

	fb, err := h.feedback.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.respond(w, fb)
}

func (h *NLQHandler) respond(w http.ResponseWriter, data any) {
	if err := WriteJSON(w, http.StatusOK, data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// validateEntities rejects tables naming an unknown category or holding a null entity.
func validateEntities(table models.EntityTable) error {
	for category := range table {
		if !category.IsKnown() {
			return fmt.Errorf("%w: %q", apperrors.ErrUnknownCategory, category)
		}
	}
	if table.HasNil() {
		return fmt.Errorf("%w: entities must not be null", apperrors.ErrInvalidInput)
	}
	return nil
}
