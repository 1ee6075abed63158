package textextract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joseph-ayodele/syllabus-sync/constants"
	"github.com/joseph-ayodele/syllabus-sync/internal/common"
)

type Config struct {
	Pdftotext string        // binary name or absolute path; if empty -> "pdftotext"
	MaxBytes  int64         // 0 = no limit
	Timeout   time.Duration // per document, default 30s

	// MaxDOCXPartBytes caps the decompressed word/document.xml, default 64 MiB
	MaxDOCXPartBytes int64
}

const defaultMaxDOCXPartBytes = 64 << 20

type Result struct {
	Text     string
	Pages    int
	Format   constants.DocumentFormat
	Method   string // "pdftotext" | "docx-xml" | "plain"
	Duration time.Duration
	Warnings []string
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxDOCXPartBytes <= 0 {
		cfg.MaxDOCXPartBytes = defaultMaxDOCXPartBytes
	}
	return &Extractor{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// WithRunner swaps the command runner used for PDF extraction.
func (e *Extractor) WithRunner(r Runner) *Extractor {
	e.runner = r
	return e
}

// Extract converts a document into normalized plain text. Failures are
// terminal for the input: the same bytes always produce the same outcome.
func (e *Extractor) Extract(ctx context.Context, data []byte, format constants.DocumentFormat) (Result, error) {
	start := time.Now()
	e.logger.Debug("textextract.start", "format", format, "bytes", len(data))

	if e.cfg.MaxBytes > 0 && int64(len(data)) > e.cfg.MaxBytes {
		e.logger.Warn("textextract.too_large", "format", format, "bytes", len(data), "limit", e.cfg.MaxBytes)
		return Result{Format: format}, tooLarge(fmt.Sprintf("document is %d bytes, limit is %d", len(data), e.cfg.MaxBytes))
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	var (
		res Result
		err error
	)
	switch format {
	case constants.PDF:
		res, err = e.extractPDF(ctx, data)
	case constants.DOCX:
		res, err = extractDOCX(data, e.cfg.MaxDOCXPartBytes)
	case constants.TXT:
		res, err = extractPlain(data)
	default:
		e.logger.Error("textextract.unsupported_format", "format", format)
		return Result{Format: format}, common.NewAppError("UNSUPPORTED_FORMAT",
			fmt.Sprintf("format %q is not supported", format), common.ErrUnsupportedFormat)
	}
	res.Format = format
	res.Duration = time.Since(start)
	if err != nil {
		e.logger.Warn("textextract.failed", "format", format, "error", err, "elapsed_ms", res.Duration.Milliseconds())
		return res, err
	}

	res.Text = Normalize(res.Text)
	if strings.TrimSpace(res.Text) == "" {
		e.logger.Warn("textextract.empty", "format", format, "pages", res.Pages)
		return res, common.NewAppError("EMPTY_DOCUMENT", "no extractable text found", common.ErrEmptyDocument)
	}

	e.logger.Info("textextract.ok",
		"format", format,
		"method", res.Method,
		"pages", res.Pages,
		"chars", len(res.Text),
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func extractPlain(data []byte) (Result, error) {
	if !utf8.Valid(data) {
		return Result{}, common.NewAppError("CORRUPT_DOCUMENT", "text file is not valid UTF-8", common.ErrCorruptDocument)
	}
	return Result{Text: string(data), Pages: 1, Method: "plain"}, nil
}
