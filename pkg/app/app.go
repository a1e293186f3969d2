// Package app assembles the question pipeline from configuration. The HTTP server and the
// command-line tool share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/nlq2sql/pkg/adapters/datasource"
	"github.com/ekaya-inc/nlq2sql/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/nlq2sql/pkg/coding"
	"github.com/ekaya-inc/nlq2sql/pkg/config"
	"github.com/ekaya-inc/nlq2sql/pkg/database"
	"github.com/ekaya-inc/nlq2sql/pkg/disambiguation"
	"github.com/ekaya-inc/nlq2sql/pkg/extraction"
	"github.com/ekaya-inc/nlq2sql/pkg/logging"
	"github.com/ekaya-inc/nlq2sql/pkg/ner"
	"github.com/ekaya-inc/nlq2sql/pkg/repositories"
	"github.com/ekaya-inc/nlq2sql/pkg/retry"
	"github.com/ekaya-inc/nlq2sql/pkg/services"
	nlqsql "github.com/ekaya-inc/nlq2sql/pkg/sql"
	"github.com/ekaya-inc/nlq2sql/pkg/translate"

	// Register datasource adapters
	_ "github.com/ekaya-inc/nlq2sql/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/nlq2sql/pkg/adapters/datasource/redshift"
)

// App holds the wired services and everything that must be released on shutdown.
type App struct {
	Pipeline    services.PipelineService
	Corrections services.CorrectionService
	Feedback    services.FeedbackService

	// Executor is nil when no datasource is configured.
	Executor datasource.QueryExecutor

	closers []func() error
	logger  *zap.Logger
}

// Options switches off parts of the wiring a caller does not need.
type Options struct {
	// SkipFeedbackStore leaves Feedback nil and never touches the feedback database.
	SkipFeedbackStore bool
}

// New builds every component named by cfg. On error, whatever was already opened is closed.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (_ *App, err error) {
	a := &App{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	detector, err := a.newDetector(cfg)
	if err != nil {
		return nil, err
	}
	normalizer := extraction.NewNormalizer(detector, extraction.Thresholds{
		EntityScore:       cfg.Detection.EntityScoreThreshold,
		RelationshipScore: cfg.Detection.RelationshipScoreThreshold,
	}, logger)

	if cfg.Datasource.Enabled() {
		executor, err := datasource.NewQueryExecutor(ctx, DatasourceConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to open datasource: %w", err)
		}
		a.Executor = executor
		a.closers = append(a.closers, executor.Close)
		logger.Info("Datasource configured",
			zap.String("type", cfg.Datasource.Type),
			zap.String("host", cfg.Datasource.Host),
			zap.String("database", cfg.Datasource.Database))
	}

	codingClient, err := a.newCodingClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	canonicalizer, err := disambiguation.DefaultCanonicalizer()
	if err != nil {
		return nil, fmt.Errorf("failed to load canonical term lists: %w", err)
	}
	resolver := disambiguation.New(canonicalizer, codingClient, logger,
		disambiguation.WithConcurrency(cfg.Coding.Concurrency))

	translator, err := translate.New(translate.Config{
		Provider:        cfg.Translator.Provider,
		Endpoint:        cfg.Translator.Endpoint,
		Model:           cfg.Translator.Model,
		APIKey:          cfg.Translator.APIKey,
		InputMaxLength:  cfg.Translator.InputMaxLength,
		OutputMaxLength: cfg.Translator.OutputMaxLength,
		Retry:           retry.DefaultConfig(),
	}, logger)
	if err != nil {
		logger.Warn("Translator unavailable, questions can be detected and rendered but not translated",
			zap.String("provider", cfg.Translator.Provider),
			zap.String("error", logging.SanitizeError(err)))
		// New may hand back a typed nil.
		translator = nil
		err = nil
	} else {
		translator = translate.NewBreaker(translator, translate.DefaultBreakerConfig(), logger)
	}

	renderer := nlqsql.NewRenderer(nlqsql.DefaultTemplates(cfg.Schema), logger)

	a.Pipeline = services.NewPipelineService(services.PipelineConfig{
		Detector:   normalizer,
		Resolver:   resolver,
		Translator: translator,
		Renderer:   renderer,
		Executor:   a.Executor,
		RowLimit:   cfg.Datasource.RowLimit,
	}, logger)
	a.Corrections = services.NewCorrectionService(resolver, logger)

	if !opts.SkipFeedbackStore {
		repo, err := a.newFeedbackRepository(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.Feedback = services.NewFeedbackService(repo, logger)
	}

	return a, nil
}

// Close releases every opened connection, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Failed to close resource", zap.Error(err))
		}
	}
	a.closers = nil
}

// DatasourceConfig maps the datasource section of cfg to adapter settings.
func DatasourceConfig(cfg *config.Config) datasource.Config {
	ds := cfg.Datasource
	return datasource.Config{
		Type:                   ds.Type,
		Host:                   ds.Host,
		Port:                   ds.Port,
		User:                   ds.User,
		Password:               ds.Password,
		Database:               ds.Database,
		SSLMode:                ds.SSLMode,
		TrustServerCertificate: ds.TrustServerCertificate,
	}
}

func (a *App) newDetector(cfg *config.Config) (ner.Detector, error) {
	switch cfg.NER.Provider {
	case "http":
		return ner.NewHTTPDetector(ner.HTTPConfig{
			URL:        cfg.NER.URL,
			APIKey:     cfg.NER.APIKey,
			Timeout:    cfg.NER.Timeout,
			RetryCount: 2,
		}, a.logger), nil
	case "hugot":
		d, err := ner.NewHugotDetector(ner.HugotConfig{
			ModelPath: cfg.NER.ModelPath,
			LabelMap:  cfg.NER.LabelMap,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to load NER model: %w", err)
		}
		a.closers = append(a.closers, d.Close)
		return d, nil
	default:
		a.logger.Info("No NER provider configured, only built-in patterns will detect entities")
		return ner.NoopDetector{}, nil
	}
}

// newCodingClient returns nil when no provider is configured. Lookups then fall back to
// the N/A option.
func (a *App) newCodingClient(ctx context.Context, cfg *config.Config) (coding.Client, error) {
	var client coding.Client

	switch cfg.Coding.Provider {
	case "http":
		client = coding.NewHTTPClient(coding.HTTPConfig{
			URL:     cfg.Coding.URL,
			APIKey:  cfg.Coding.APIKey,
			Timeout: cfg.Coding.Timeout,
			Retry:   retry.DefaultConfig(),
		}, a.logger)
	case "omop":
		pg, ok := a.Executor.(*postgres.QueryExecutor)
		if !ok {
			return nil, fmt.Errorf("coding provider omop needs a postgres datasource, got %q", cfg.Datasource.Type)
		}
		pool, ok := pg.Pool()
		if !ok {
			return nil, errors.New("postgres datasource has no connection pool")
		}
		concepts, err := coding.NewConceptClient(pool, cfg.Schema, cfg.Coding.Limit, a.logger)
		if err != nil {
			return nil, err
		}
		client = concepts
	default:
		return nil, nil
	}

	if cfg.Redis.Host == "" {
		return client, nil
	}
	rdb, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.closers = append(a.closers, rdb.Close)
	return coding.NewCachedClient(client, rdb, cfg.Coding.CacheTTL, a.logger), nil
}

func (a *App) newFeedbackRepository(ctx context.Context, cfg *config.Config) (repositories.FeedbackRepository, error) {
	if !cfg.Database.Enabled() {
		a.logger.Info("Storing feedback as files", zap.String("dir", cfg.Feedback.Dir))
		return repositories.NewFileFeedbackRepository(cfg.Feedback.Dir)
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to feedback database: %w", err)
	}
	a.closers = append(a.closers, func() error {
		db.Close()
		return nil
	})

	if err := db.Migrate(a.logger); err != nil {
		return nil, fmt.Errorf("failed to migrate feedback database: %w", err)
	}
	a.logger.Info("Storing feedback in PostgreSQL",
		zap.String("url", logging.SanitizeConnectionString(cfg.Database.ConnectionString())))
	return repositories.NewFeedbackRepository(db.Pool), nil
}
