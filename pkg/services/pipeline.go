package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/nlq2sql/pkg/adapters/datasource"
	"github.com/ekaya-inc/nlq2sql/pkg/apperrors"
	"github.com/ekaya-inc/nlq2sql/pkg/logging"
	"github.com/ekaya-inc/nlq2sql/pkg/metrics"
	"github.com/ekaya-inc/nlq2sql/pkg/models"
	"github.com/ekaya-inc/nlq2sql/pkg/placeholder"
	"github.com/ekaya-inc/nlq2sql/pkg/rewrite"
	nlqsql "github.com/ekaya-inc/nlq2sql/pkg/sql"
	"github.com/ekaya-inc/nlq2sql/pkg/translate"
)

// Pipeline stage names, used as metric labels.
const (
	StageDetect    = "detect"
	StageProcess   = "process"
	StageTranslate = "translate"
	StageRender    = "render"
	StageExecute   = "execute"
)

// EntityDetector finds entities in a raw question.
type EntityDetector interface {
	Detect(ctx context.Context, question string) (models.EntityTable, error)
}

// EntityResolver fills Options and QueryArg on every entity of a table.
type EntityResolver interface {
	Disambiguate(ctx context.Context, table models.EntityTable) error
}

// PipelineResult is the outcome of an end-to-end run.
type PipelineResult struct {
	Question            string                           `json:"question"`
	Entities            models.EntityTable               `json:"entities"`
	GeneralizedQuestion string                           `json:"generalized_question"`
	SQLSkeleton         string                           `json:"sql_skeleton"`
	RenderedSQL         string                           `json:"rendered_sql"`
	Result              *datasource.QueryExecutionResult `json:"result,omitempty"`
}

// PipelineService turns a clinical question into SQL over the OMOP schema.
type PipelineService interface {
	// Detect finds and normalizes the entities of a question.
	Detect(ctx context.Context, question string) (models.EntityTable, error)

	// Process disambiguates and numbers the entities of a copy of table. start gives the
	// first ordinal per category; nil starts every category at 0.
	Process(ctx context.Context, table models.EntityTable, start map[models.Category]int) (models.EntityTable, error)

	// Rewrite replaces entity mentions with their placeholders.
	Rewrite(question string, table models.EntityTable) string

	// Translate asks the translation model for a SQL skeleton.
	Translate(ctx context.Context, generalizedQuestion string) (string, error)

	// Render expands the skeleton's macros against the table.
	Render(skeleton string, table models.EntityTable) (string, error)

	// Execute runs rendered SQL on the configured datasource.
	Execute(ctx context.Context, renderedSQL string, limit int) (*datasource.QueryExecutionResult, error)

	// Run chains every stage. Execution only happens when execute is true.
	Run(ctx context.Context, question string, execute bool) (*PipelineResult, error)
}

type pipelineService struct {
	detector   EntityDetector
	resolver   EntityResolver
	translator translate.Translator
	renderer   *nlqsql.Renderer
	executor   datasource.QueryExecutor
	rowLimit   int
	logger     *zap.Logger
}

// PipelineConfig holds the collaborators of a pipeline. Executor may be nil, in which
// case Execute returns apperrors.ErrNoDatasource.
type PipelineConfig struct {
	Detector   EntityDetector
	Resolver   EntityResolver
	Translator translate.Translator
	Renderer   *nlqsql.Renderer
	Executor   datasource.QueryExecutor
	RowLimit   int
}

// NewPipelineService wires a pipeline.
func NewPipelineService(cfg PipelineConfig, logger *zap.Logger) PipelineService {
	return &pipelineService{
		detector:   cfg.Detector,
		resolver:   cfg.Resolver,
		translator: cfg.Translator,
		renderer:   cfg.Renderer,
		executor:   cfg.Executor,
		rowLimit:   cfg.RowLimit,
		logger:     logger.Named("pipeline"),
	}
}

var _ PipelineService = (*pipelineService)(nil)

func (s *pipelineService) Detect(ctx context.Context, question string) (table models.EntityTable, err error) {
	defer func(start time.Time) { metrics.ObserveStage(StageDetect, start, err) }(time.Now())

	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", apperrors.ErrInvalidInput)
	}

	table, err = s.detector.Detect(ctx, question)
	if err != nil {
		s.logger.Error("Entity detection failed", zap.Error(err))
		return nil, err
	}

	counts := make(map[string]int, len(table))
	for category, entities := range table {
		counts[string(category)] = len(entities)
	}
	metrics.RecordEntities(counts)

	s.logger.Debug("Detected entities", zap.String("question", question), zap.Int("entities", table.Len()))
	return table, nil
}

func (s *pipelineService) Process(ctx context.Context, table models.EntityTable, start map[models.Category]int) (out models.EntityTable, err error) {
	defer func(begin time.Time) { metrics.ObserveStage(StageProcess, begin, err) }(time.Now())

	out = table.Clone()
	if out == nil {
		out = models.EntityTable{}
	}
	if err := s.resolver.Disambiguate(ctx, out); err != nil {
		return nil, fmt.Errorf("failed to disambiguate entities: %w", err)
	}
	return placeholder.Assign(out, start), nil
}

func (s *pipelineService) Rewrite(question string, table models.EntityTable) string {
	return rewrite.Rewrite(question, table)
}

func (s *pipelineService) Translate(ctx context.Context, generalizedQuestion string) (skeleton string, err error) {
	defer func(start time.Time) { metrics.ObserveStage(StageTranslate, start, err) }(time.Now())

	if s.translator == nil {
		return "", fmt.Errorf("%w: no translator configured", apperrors.ErrTranslationFailed)
	}

	skeleton, err = s.translator.Translate(ctx, generalizedQuestion)
	if err != nil {
		s.logger.Error("Translation failed",
			zap.String("question", logging.SanitizeQuestion(generalizedQuestion)),
			zap.String("error", logging.SanitizeError(err)))
		return "", fmt.Errorf("%w: %w", apperrors.ErrTranslationFailed, err)
	}

	s.logger.Info("Translated question",
		zap.String("question", logging.SanitizeQuestion(generalizedQuestion)),
		zap.String("skeleton", logging.SanitizeQuery(skeleton)))
	return skeleton, nil
}

func (s *pipelineService) Render(skeleton string, table models.EntityTable) (rendered string, err error) {
	defer func(start time.Time) { metrics.ObserveStage(StageRender, start, err) }(time.Now())

	for _, flag := range nlqsql.CheckQueryArgs(table) {
		s.logger.Warn("Query argument looks like SQL injection",
			zap.String("category", string(flag.Category)),
			zap.String("placeholder", flag.Placeholder),
			zap.String("fingerprint", flag.Fingerprint))
		metrics.RecordInjectionFlags(1)
	}

	rendered, stats, err := s.renderer.RenderWithStats(skeleton, table)
	if err != nil {
		return "", err
	}
	metrics.RecordRender(stats.Schema, stats.TemplatedArgs, stats.Args, stats.TemplatesOnly, len(stats.RemainingMacro))
	return rendered, nil
}

func (s *pipelineService) Execute(ctx context.Context, renderedSQL string, limit int) (result *datasource.QueryExecutionResult, err error) {
	defer func(start time.Time) { metrics.ObserveStage(StageExecute, start, err) }(time.Now())

	if s.executor == nil {
		return nil, apperrors.ErrNoDatasource
	}

	prepared, err := nlqsql.PrepareForExecution(renderedSQL)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = s.rowLimit
	}
	result, err = s.executor.Query(ctx, prepared, limit)
	if err != nil {
		s.logger.Error("Query execution failed",
			zap.String("sql", logging.SanitizeQuery(prepared)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, err
	}

	s.logger.Info("Executed query",
		zap.String("sql", logging.SanitizeQuery(prepared)),
		zap.Int("rows", result.RowCount))
	return result, nil
}

func (s *pipelineService) Run(ctx context.Context, question string, execute bool) (*PipelineResult, error) {
	detected, err := s.Detect(ctx, question)
	if err != nil {
		return nil, err
	}

	table, err := s.Process(ctx, detected, nil)
	if err != nil {
		return nil, err
	}

	result := &PipelineResult{
		Question:            question,
		Entities:            table,
		GeneralizedQuestion: s.Rewrite(question, table),
	}

	result.SQLSkeleton, err = s.Translate(ctx, result.GeneralizedQuestion)
	if err != nil {
		return nil, err
	}

	result.RenderedSQL, err = s.Render(result.SQLSkeleton, table)
	if err != nil {
		return nil, err
	}

	if execute {
		result.Result, err = s.Execute(ctx, result.RenderedSQL, 0)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}
