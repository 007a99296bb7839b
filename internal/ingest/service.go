// Package ingest orchestrates document processing: rasterize the source,
// recognize every page, extract the structured report, and persist the
// outcome. Progress flows to the caller through a callback so the HTTP layer
// can relay it as server-sent events.
package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/famhealth/famhealth/internal/cache"
	"github.com/famhealth/famhealth/internal/domain"
	"github.com/famhealth/famhealth/internal/observability"
	"github.com/famhealth/famhealth/internal/ocr"
	"github.com/famhealth/famhealth/internal/storage"
)

// Aggregator recognizes a set of pages. Satisfied by *ocr.Aggregator.
type Aggregator interface {
	Process(ctx context.Context, pages []domain.PageImage, onProgress domain.ProgressFunc) domain.RecognitionResult
}

// Extractor structures recognized text. Satisfied by *report.Extractor.
type Extractor interface {
	Extract(ctx context.Context, text string) (*domain.ParsedHealthReport, int, error)
}

// Service runs the full ingestion pipeline for one source file.
type Service struct {
	aggregator Aggregator
	extractor  Extractor
	logger     *observability.Logger

	// Seams for tests; production wiring uses the ocr package directly.
	newWorkspace func() (*ocr.Workspace, error)
	rasterize    func(pdfPath, outputDir string) ([]domain.PageImage, error)
}

// NewService wires the pipeline.
func NewService(rasterizer *ocr.Rasterizer, aggregator Aggregator, extractor Extractor, logger *observability.Logger) *Service {
	return &Service{
		aggregator:   aggregator,
		extractor:    extractor,
		logger:       logger.WithComponent("ingest"),
		newWorkspace: ocr.NewWorkspace,
		rasterize:    rasterizer.Rasterize,
	}
}

// Ingest processes one source document and returns the parsed report plus
// the total tokens used across recognition and extraction. The temporary
// workspace is removed on every exit path, cancellation included.
func (s *Service) Ingest(ctx context.Context, sourcePath string, onProgress domain.ProgressFunc) (*domain.ParsedHealthReport, int, error) {
	var pages []domain.PageImage

	if ocr.IsImageSource(sourcePath) {
		pages = []domain.PageImage{{PageNumber: 1, ImagePath: sourcePath}}
	} else {
		ws, err := s.newWorkspace()
		if err != nil {
			return nil, 0, err
		}
		defer func() {
			if err := ws.Cleanup(); err != nil {
				s.logger.Warn().Err(err).Msg("workspace cleanup failed")
			}
		}()

		pages, err = s.rasterize(sourcePath, ws.Dir)
		if err != nil {
			return nil, 0, err
		}
	}

	ocrResult := s.aggregator.Process(ctx, pages, onProgress)
	if !ocrResult.Success {
		if ctx.Err() != nil {
			return nil, ocrResult.TokensUsed, ctx.Err()
		}
		return nil, ocrResult.TokensUsed, domain.PipelineError(ocrResult.Error, nil)
	}

	parsed, extractTokens, err := s.extractor.Extract(ctx, ocrResult.Text)
	totalTokens := ocrResult.TokensUsed + extractTokens
	if err != nil {
		return nil, totalTokens, err
	}

	s.logger.Info().
		Int("pages", len(pages)).
		Int("indicators", len(parsed.Indicators)).
		Int("tokens", totalTokens).
		Msg("document ingested")

	return parsed, totalTokens, nil
}

const progressTTL = 10 * time.Minute

// Progress is the last reported state of a running ingestion, kept in the
// cache so it can be polled independently of the SSE stream.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// Runner executes ingestion for stored documents, keeping their status and
// results in the database and progress snapshots in the cache.
type Runner struct {
	service *Service
	docs    *storage.DocumentRepository
	cache   cache.Client
	logger  *observability.Logger
}

// NewRunner creates a Runner. cache may be nil to skip progress snapshots.
func NewRunner(service *Service, docs *storage.DocumentRepository, c cache.Client, logger *observability.Logger) *Runner {
	return &Runner{
		service: service,
		docs:    docs,
		cache:   c,
		logger:  logger.WithComponent("ingest-runner"),
	}
}

func progressKey(documentID string) string {
	return "ingest-progress:" + documentID
}

// Progress returns the last snapshot for a running ingestion, or ErrMiss
// when none is active.
func (r *Runner) Progress(ctx context.Context, documentID string) (*Progress, error) {
	if r.cache == nil {
		return nil, cache.ErrMiss
	}
	raw, err := r.cache.Get(ctx, progressKey(documentID))
	if err != nil {
		return nil, err
	}
	var p Progress
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, domain.StorageError("decode progress snapshot", err)
	}
	return &p, nil
}

// Run processes the stored document with the given ID. The document moves
// through processing to completed or failed; the parsed report is stored as
// JSON on success.
func (r *Runner) Run(ctx context.Context, documentID string, onProgress domain.ProgressFunc) (*domain.ParsedHealthReport, error) {
	doc, err := r.docs.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}

	if err := r.docs.SetStatus(ctx, doc.ID, storage.DocStatusProcessing, ""); err != nil {
		return nil, err
	}

	reportProgress := onProgress
	if r.cache != nil {
		reportProgress = func(current, total int, message string) {
			snapshot, _ := json.Marshal(Progress{Current: current, Total: total, Message: message})
			_ = r.cache.Set(ctx, progressKey(doc.ID), string(snapshot), progressTTL)
			if onProgress != nil {
				onProgress(current, total, message)
			}
		}
		// The snapshot must go away on every exit path, cancellation
		// included.
		defer func() {
			_ = r.cache.Delete(context.WithoutCancel(ctx), progressKey(doc.ID))
		}()
	}

	parsed, tokens, err := r.service.Ingest(ctx, doc.FilePath, reportProgress)
	if err != nil {
		// Status updates must survive the caller's cancellation.
		statusCtx := context.WithoutCancel(ctx)
		if setErr := r.docs.SetStatus(statusCtx, doc.ID, storage.DocStatusFailed, err.Error()); setErr != nil {
			r.logger.Error().Err(setErr).Str("document_id", doc.ID).Msg("failed to record failure")
		}
		return nil, err
	}

	reportJSON, err := json.Marshal(parsed)
	if err != nil {
		return nil, domain.ValidationError("marshal parsed report", err)
	}
	if err := r.docs.SaveResult(ctx, doc.ID, parsed.RawText, string(reportJSON), tokens); err != nil {
		return nil, err
	}

	return parsed, nil
}
