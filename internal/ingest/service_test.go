package ingest

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/famhealth/famhealth/internal/domain"
	"github.com/famhealth/famhealth/internal/observability"
	"github.com/famhealth/famhealth/internal/ocr"
)

type fakeAggregator struct {
	result    domain.RecognitionResult
	gotPages  []domain.PageImage
	cancelled bool
}

func (f *fakeAggregator) Process(ctx context.Context, pages []domain.PageImage, onProgress domain.ProgressFunc) domain.RecognitionResult {
	f.gotPages = pages
	if ctx.Err() != nil {
		f.cancelled = true
		return domain.RecognitionResult{Success: false, Error: ctx.Err().Error()}
	}
	if onProgress != nil {
		for i := range pages {
			onProgress(i+1, len(pages), "recognized")
		}
	}
	return f.result
}

type fakeExtractor struct {
	report *domain.ParsedHealthReport
	tokens int
	err    error
}

func (f *fakeExtractor) Extract(_ context.Context, text string) (*domain.ParsedHealthReport, int, error) {
	if f.err != nil {
		return nil, f.tokens, f.err
	}
	report := *f.report
	report.RawText = text
	return &report, f.tokens, nil
}

func testService(agg Aggregator, ext Extractor, workDirs *[]string) *Service {
	s := &Service{
		aggregator: agg,
		extractor:  ext,
		logger:     observability.Nop(),
	}
	s.newWorkspace = func() (*ocr.Workspace, error) {
		ws, err := ocr.NewWorkspace()
		if err == nil && workDirs != nil {
			*workDirs = append(*workDirs, ws.Dir)
		}
		return ws, err
	}
	s.rasterize = func(_, outputDir string) ([]domain.PageImage, error) {
		return []domain.PageImage{
			{PageNumber: 1, ImagePath: outputDir + "/page-1.jpg"},
			{PageNumber: 2, ImagePath: outputDir + "/page-2.jpg"},
		}, nil
	}
	return s
}

func TestIngestTokensAreAdditive(t *testing.T) {
	agg := &fakeAggregator{result: domain.RecognitionResult{Success: true, Text: "ocr text", TokensUsed: 100}}
	ext := &fakeExtractor{
		report: &domain.ParsedHealthReport{Indicators: []domain.Indicator{{Name: "hb"}}},
		tokens: 40,
	}
	svc := testService(agg, ext, nil)

	parsed, tokens, err := svc.Ingest(context.Background(), "/tmp/report.pdf", nil)
	require.NoError(t, err)
	assert.Equal(t, 140, tokens)
	assert.Equal(t, "ocr text", parsed.RawText)
}

func TestIngestCleansWorkspaceOnSuccess(t *testing.T) {
	agg := &fakeAggregator{result: domain.RecognitionResult{Success: true, Text: "t", TokensUsed: 1}}
	ext := &fakeExtractor{report: &domain.ParsedHealthReport{}}

	var dirs []string
	svc := testService(agg, ext, &dirs)

	_, _, err := svc.Ingest(context.Background(), "/tmp/report.pdf", nil)
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	assert.NoDirExists(t, dirs[0])
}

func TestIngestCleansWorkspaceOnFailure(t *testing.T) {
	agg := &fakeAggregator{result: domain.RecognitionResult{Success: false, Error: "all pages failed"}}
	ext := &fakeExtractor{}

	var dirs []string
	svc := testService(agg, ext, &dirs)

	_, _, err := svc.Ingest(context.Background(), "/tmp/report.pdf", nil)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypePipeline))
	require.Len(t, dirs, 1)
	assert.NoDirExists(t, dirs[0])
}

func TestIngestCleansWorkspaceOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	agg := &fakeAggregator{}
	ext := &fakeExtractor{}

	var dirs []string
	svc := testService(agg, ext, &dirs)

	_, _, err := svc.Ingest(ctx, "/tmp/report.pdf", nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, agg.cancelled)
	require.Len(t, dirs, 1)
	assert.NoDirExists(t, dirs[0])
}

func TestIngestImageSourceSkipsRasterization(t *testing.T) {
	agg := &fakeAggregator{result: domain.RecognitionResult{Success: true, Text: "t", TokensUsed: 2}}
	ext := &fakeExtractor{report: &domain.ParsedHealthReport{}}

	var dirs []string
	svc := testService(agg, ext, &dirs)
	svc.rasterize = func(string, string) ([]domain.PageImage, error) {
		t.Fatal("rasterize must not be called for image sources")
		return nil, nil
	}

	_, _, err := svc.Ingest(context.Background(), "/tmp/scan.jpg", nil)
	require.NoError(t, err)
	assert.Empty(t, dirs, "no workspace needed for a single image")
	require.Len(t, agg.gotPages, 1)
	assert.Equal(t, "/tmp/scan.jpg", agg.gotPages[0].ImagePath)
}

func TestIngestExtractionFailureStillReportsTokens(t *testing.T) {
	agg := &fakeAggregator{result: domain.RecognitionResult{Success: true, Text: "t", TokensUsed: 30}}
	ext := &fakeExtractor{tokens: 12, err: domain.ExtractionError("no indicators", nil)}
	svc := testService(agg, ext, nil)

	_, tokens, err := svc.Ingest(context.Background(), "/tmp/report.pdf", nil)
	require.Error(t, err)
	assert.Equal(t, 42, tokens)
}

func TestIngestProgressForwarded(t *testing.T) {
	agg := &fakeAggregator{result: domain.RecognitionResult{Success: true, Text: "t"}}
	ext := &fakeExtractor{report: &domain.ParsedHealthReport{}}
	svc := testService(agg, ext, nil)

	var calls [][2]int
	_, _, err := svc.Ingest(context.Background(), "/tmp/report.pdf", func(current, total int, _ string) {
		calls = append(calls, [2]int{current, total})
	})
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{1, 2}, {2, 2}}, calls)
}

func TestWorkspaceCleanupRemovesFiles(t *testing.T) {
	ws, err := ocr.NewWorkspace()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(ws.Dir+"/page-1.jpg", []byte("x"), 0o644))
	dir := ws.Dir
	require.NoError(t, ws.Cleanup())
	assert.NoDirExists(t, dir)
}
