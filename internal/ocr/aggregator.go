package ocr

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/famhealth/famhealth/internal/domain"
	"github.com/famhealth/famhealth/internal/observability"
)

// PageRecognizer recognizes one image. Satisfied by *Recognizer.
type PageRecognizer interface {
	Recognize(ctx context.Context, imageSource string) domain.RecognitionResult
}

// Aggregator runs recognition across all pages of a document and merges the
// per-page results into one transcript. Individual page failures are
// tolerated; the aggregate fails only when no page succeeds.
type Aggregator struct {
	recognizer PageRecognizer
	parallel   int
	logger     *observability.Logger
}

// NewAggregator creates an Aggregator. parallel bounds concurrent page
// recognitions; 1 means strictly sequential.
func NewAggregator(recognizer PageRecognizer, parallel int, logger *observability.Logger) *Aggregator {
	if parallel < 1 {
		parallel = 1
	}
	return &Aggregator{
		recognizer: recognizer,
		parallel:   parallel,
		logger:     logger.WithComponent("aggregator"),
	}
}

// Process recognizes every page and merges the texts with page markers.
// onProgress fires once per page in page order, even when recognition runs
// in parallel. The returned result sums tokens over successful pages.
func (a *Aggregator) Process(ctx context.Context, pages []domain.PageImage, onProgress domain.ProgressFunc) domain.RecognitionResult {
	if len(pages) == 0 {
		return domain.RecognitionResult{Success: false, Error: "no pages to recognize"}
	}

	results := make([]domain.RecognitionResult, len(pages))

	if a.parallel == 1 {
		for i, page := range pages {
			if ctx.Err() != nil {
				return domain.RecognitionResult{Success: false, Error: ctx.Err().Error()}
			}
			results[i] = a.recognizer.Recognize(ctx, page.ImagePath)
			a.reportPage(onProgress, i+1, len(pages), results[i])
		}
	} else {
		if err := a.processParallel(ctx, pages, results, onProgress); err != nil {
			return domain.RecognitionResult{Success: false, Error: err.Error()}
		}
	}

	return a.merge(pages, results)
}

// processParallel runs recognition with bounded concurrency. Progress is
// dispatched in page order: a finished page waits until every earlier page
// has been reported.
func (a *Aggregator) processParallel(ctx context.Context, pages []domain.PageImage, results []domain.RecognitionResult, onProgress domain.ProgressFunc) error {
	var (
		mu   sync.Mutex
		done = make([]bool, len(pages))
		next int
	)

	report := func(idx int) {
		mu.Lock()
		defer mu.Unlock()
		done[idx] = true
		for next < len(pages) && done[next] {
			a.reportPage(onProgress, next+1, len(pages), results[next])
			next++
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallel)
	for i := range pages {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			results[i] = a.recognizer.Recognize(gctx, pages[i].ImagePath)
			report(i)
			return nil
		})
	}
	return g.Wait()
}

func (a *Aggregator) reportPage(onProgress domain.ProgressFunc, current, total int, result domain.RecognitionResult) {
	if onProgress == nil {
		return
	}
	msg := fmt.Sprintf("page %d/%d recognized", current, total)
	if !result.Success {
		msg = fmt.Sprintf("page %d/%d failed", current, total)
	}
	onProgress(current, total, msg)
}

// merge joins per-page texts with page markers. Failed pages leave a
// placeholder so downstream extraction knows a page is missing.
func (a *Aggregator) merge(pages []domain.PageImage, results []domain.RecognitionResult) domain.RecognitionResult {
	var (
		sections  []string
		tokens    int
		succeeded int
		lastErr   string
	)

	for i, res := range results {
		marker := fmt.Sprintf("--- page %d ---", pages[i].PageNumber)
		if res.Success {
			succeeded++
			tokens += res.TokensUsed
			sections = append(sections, marker+"\n"+res.Text)
		} else {
			lastErr = res.Error
			sections = append(sections, marker+"\n[page recognition failed]")
		}
	}

	if succeeded == 0 {
		a.logger.Error().Int("pages", len(pages)).Str("last_error", lastErr).
			Msg("all pages failed recognition")
		return domain.RecognitionResult{
			Success: false,
			Error:   fmt.Sprintf("all %d pages failed recognition: %s", len(pages), lastErr),
		}
	}

	if succeeded < len(pages) {
		a.logger.Warn().Int("succeeded", succeeded).Int("total", len(pages)).
			Msg("document recognized with failed pages")
	}

	return domain.RecognitionResult{
		Success:    true,
		Text:       strings.Join(sections, "\n\n"),
		TokensUsed: tokens,
	}
}
