// Package pipeline wires ingestion, validation, enrichment, persistence,
// commit and export into the operations the HTTP layer calls.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/storeimport/internal/commit"
	"github.com/JonMunkholm/storeimport/internal/core"
	"github.com/JonMunkholm/storeimport/internal/enrich"
	"github.com/JonMunkholm/storeimport/internal/export"
	"github.com/JonMunkholm/storeimport/internal/ingest"
	"github.com/JonMunkholm/storeimport/internal/logging"
	"github.com/JonMunkholm/storeimport/internal/store"
	"github.com/JonMunkholm/storeimport/internal/validate"
)

// IngestTimeout bounds one ingestion from parse to persisted job.
var IngestTimeout = 5 * time.Minute

// Service runs the import pipeline.
type Service struct {
	jobs      store.JobStore
	parser    *ingest.Parser
	validator *validate.Validator
	enricher  *enrich.Enricher
	engine    *commit.Engine
	exporter  *export.Exporter
	workers   int
	logger    *slog.Logger
}

// Config holds the collaborators of a Service. Enricher may be nil, which
// disables enrichment.
type Config struct {
	Jobs      store.JobStore
	Parser    *ingest.Parser
	Validator *validate.Validator
	Enricher  *enrich.Enricher
	Engine    *commit.Engine
	Workers   int
	Logger    *slog.Logger
}

// NewService creates a Service.
func NewService(cfg Config) *Service {
	if cfg.Parser == nil {
		cfg.Parser = ingest.NewParser(nil, 0)
	}
	if cfg.Validator == nil {
		cfg.Validator = validate.NewValidator()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		jobs:      cfg.Jobs,
		parser:    cfg.Parser,
		validator: cfg.Validator,
		enricher:  cfg.Enricher,
		engine:    cfg.Engine,
		exporter:  export.NewExporter(cfg.Jobs, cfg.Logger),
		workers:   cfg.Workers,
		logger:    cfg.Logger,
	}
}

// IngestOptions control one ingestion.
type IngestOptions struct {
	Enrich bool
	Actor  core.Actor
}

// IngestResult is a created job plus its enrichment report.
type IngestResult struct {
	Job        *core.ImportJob
	Enrichment enrich.Report
}

// Ingest parses a source, validates every row, optionally enriches store
// names and persists the job in status validated. A *core.SourceError
// means no job was created.
func (s *Service) Ingest(ctx context.Context, src ingest.Source, opts IngestOptions) (*IngestResult, error) {
	ctx, cancel := context.WithTimeout(ctx, IngestTimeout)
	defer cancel()

	start := time.Now()

	parsed, err := s.parser.Parse(ctx, src)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate job id: %w", err)
	}
	jobID := id.String()
	logger := logging.Attach(ctx, s.logger).With(slog.String("job_id", jobID))

	jc := validate.NewJobContext(jobID, parsed.Headers)
	outcomes, err := s.validator.ValidateAll(ctx, parsed.Rows, jc, s.workers)
	if err != nil {
		return nil, err
	}

	var report enrich.Report
	if opts.Enrich && s.enricher != nil {
		report = s.enricher.Enrich(ctx, outcomes)
	}

	rows := make([]core.ImportRow, len(outcomes))
	for i, o := range outcomes {
		rows[i] = core.ImportRow{
			RowIndex:   i + 1,
			Raw:        parsed.Rows[i],
			Normalized: o.Normalized,
			Status:     o.Status,
			Errors:     o.Errors,
			Warnings:   o.Warnings,
			Autofixes:  o.Autofixes,
		}
	}

	meta := parsed.Meta
	meta.IgnoredColumns = jc.Ignored
	counts := core.CountRows(rows)
	job := &core.ImportJob{
		ID:          jobID,
		SourceName:  sourceName(src),
		SourceKind:  meta.Kind,
		SourceMeta:  meta,
		Status:      core.JobValidated,
		TotalRows:   counts.Total,
		ValidRows:   counts.Valid,
		WarningRows: counts.Warning,
		ErrorRows:   counts.Error,
		CreatedBy:   opts.Actor.String(),
	}
	if err := s.jobs.CreateJob(ctx, job, rows); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	logger.Info("import job created",
		slog.String("source", job.SourceName),
		slog.String("kind", string(job.SourceKind)),
		slog.Int("rows", counts.Total),
		slog.Int("valid", counts.Valid),
		slog.Int("warnings", counts.Warning),
		slog.Int("errors", counts.Error),
		slog.Int("enriched", report.Enriched),
		slog.Duration("duration", time.Since(start)),
	)
	return &IngestResult{Job: job, Enrichment: report}, nil
}

func sourceName(src ingest.Source) string {
	if src.URL != "" {
		return src.URL
	}
	return src.FileName
}

// Job returns one job.
func (s *Service) Job(ctx context.Context, id string) (*core.ImportJob, error) {
	return s.jobs.GetJob(ctx, id)
}

// Jobs lists jobs newest first.
func (s *Service) Jobs(ctx context.Context, limit, offset int) ([]core.ImportJob, error) {
	return s.jobs.ListJobs(ctx, limit, offset)
}

// Rows lists a job's rows in row_index order.
func (s *Service) Rows(ctx context.Context, jobID string, filter store.RowFilter) ([]core.ImportRow, error) {
	return s.jobs.ListRows(ctx, jobID, filter)
}

// Commit commits a job.
func (s *Service) Commit(ctx context.Context, jobID string, opts commit.Options) (*core.CommitSummary, error) {
	return s.engine.Commit(ctx, jobID, opts)
}

// Export renders a job.
func (s *Service) Export(ctx context.Context, jobID string, format export.Format) (*export.Artifact, error) {
	return s.exporter.Export(ctx, jobID, format)
}

// CommitStrategy names the strategy commits run with.
func (s *Service) CommitStrategy() core.CommitStrategyName {
	return s.engine.Strategy()
}

// CommitStatus reports commit slot usage.
func (s *Service) CommitStatus() commit.LimiterStatus {
	return s.engine.Limiter().Status()
}
