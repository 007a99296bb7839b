package ocr

import (
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/famhealth/famhealth/internal/domain"
	"github.com/famhealth/famhealth/internal/observability"
)

// Rasterizer converts PDF documents into per-page JPG images.
type Rasterizer struct {
	jpegQuality int
	logger      *observability.Logger
}

// NewRasterizer creates a Rasterizer. quality is the JPEG encoder quality.
func NewRasterizer(quality int, logger *observability.Logger) *Rasterizer {
	if quality < 1 || quality > 100 {
		quality = 85
	}
	return &Rasterizer{
		jpegQuality: quality,
		logger:      logger.WithComponent("rasterizer"),
	}
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".bmp":  true,
	".gif":  true,
}

// IsImageSource reports whether path already is a raster image and needs no
// PDF conversion.
func IsImageSource(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// Rasterize renders every page of the PDF at pdfPath into outputDir and
// returns the pages in document order. A document that yields zero pages is
// a pipeline error.
func (r *Rasterizer) Rasterize(pdfPath, outputDir string) ([]domain.PageImage, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, domain.IOError(fmt.Sprintf("open pdf %s", pdfPath), err)
	}
	defer doc.Close()

	total := doc.NumPage()
	if total == 0 {
		return nil, domain.PipelineError("document contains no pages", nil)
	}

	r.logger.Debug().Str("pdf", pdfPath).Int("pages", total).Msg("rasterizing document")

	for i := 0; i < total; i++ {
		img, err := doc.Image(i)
		if err != nil {
			return nil, domain.IOError(fmt.Sprintf("render page %d", i+1), err)
		}

		pagePath := filepath.Join(outputDir, fmt.Sprintf("page-%d.jpg", i+1))
		f, err := os.Create(pagePath)
		if err != nil {
			return nil, domain.IOError(fmt.Sprintf("create page image %s", pagePath), err)
		}
		if err := jpeg.Encode(f, img, &jpeg.Options{Quality: r.jpegQuality}); err != nil {
			f.Close()
			return nil, domain.IOError(fmt.Sprintf("encode page %d", i+1), err)
		}
		if err := f.Close(); err != nil {
			return nil, domain.IOError(fmt.Sprintf("close page image %s", pagePath), err)
		}
	}

	return CollectPages(outputDir)
}

var pageNumberRe = regexp.MustCompile(`page-(\d+)\.jpg$`)

// CollectPages enumerates page images in dir and orders them by the numeric
// page suffix. A plain lexical sort would put page-10 before page-2, so the
// number is parsed out of the filename.
func CollectPages(dir string) ([]domain.PageImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, domain.IOError(fmt.Sprintf("list page images in %s", dir), err)
	}

	var pages []domain.PageImage
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := pageNumberRe.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		num, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		pages = append(pages, domain.PageImage{
			PageNumber: num,
			ImagePath:  filepath.Join(dir, entry.Name()),
		})
	}

	if len(pages) == 0 {
		return nil, domain.PipelineError("rasterization produced no page images", nil)
	}

	sort.Slice(pages, func(i, j int) bool {
		return pages[i].PageNumber < pages[j].PageNumber
	})
	return pages, nil
}
