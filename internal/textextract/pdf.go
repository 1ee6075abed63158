package textextract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

var pdfMagic = []byte("%PDF-")

func (e *Extractor) extractPDF(ctx context.Context, data []byte) (Result, error) {
	// the header may follow a few junk bytes, readers accept it within the first 1KB
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	if !bytes.Contains(head, pdfMagic) {
		return Result{}, corrupt("missing PDF header", nil)
	}

	tmpDir, err := os.MkdirTemp("", "syl-pdf-*")
	if err != nil {
		return Result{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer func(path string) {
		if err := os.RemoveAll(path); err != nil {
			e.logger.Warn("failed to remove temp dir", "path", path, "error", err)
		}
	}(tmpDir)

	path := filepath.Join(tmpDir, "in.pdf")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return Result{}, fmt.Errorf("write temp pdf: %w", err)
	}

	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || ctx.Err() != nil {
			return Result{}, fmt.Errorf("run %s: %w", e.cfg.Pdftotext, err)
		}
		return Result{Warnings: []string{strings.TrimSpace(string(errb))}},
			corrupt("pdf could not be decoded", err)
	}
	text := string(out)
	// a form feed separates pages
	pages := 1 + strings.Count(strings.TrimRight(text, "\f"), "\f")
	return Result{Text: text, Pages: pages, Method: "pdftotext"}, nil
}
