// Package ocr turns a source document into text: PDF pages become JPG images,
// each image goes through the vision model, and the per-page results are
// merged into a single marker-delimited transcript.
package ocr

import (
	"os"

	"github.com/famhealth/famhealth/internal/domain"
)

// Workspace is a per-job temporary directory holding rasterized page images.
// Callers must Cleanup on every exit path, including cancellation.
type Workspace struct {
	Dir string
}

// NewWorkspace creates a fresh temporary directory for one ingestion job.
func NewWorkspace() (*Workspace, error) {
	dir, err := os.MkdirTemp("", "famhealth-ocr-*")
	if err != nil {
		return nil, domain.IOError("create ocr workspace", err)
	}
	return &Workspace{Dir: dir}, nil
}

// Cleanup removes the workspace and everything in it. Safe to call twice.
func (w *Workspace) Cleanup() error {
	if w.Dir == "" {
		return nil
	}
	err := os.RemoveAll(w.Dir)
	w.Dir = ""
	return err
}
