// Package pipeline runs the ingest path: text extraction, structured
// extraction, normalization, then storage of the source document and record.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/syllabus-sync/constants"
	"github.com/joseph-ayodele/syllabus-sync/internal/blob"
	"github.com/joseph-ayodele/syllabus-sync/internal/common"
	"github.com/joseph-ayodele/syllabus-sync/internal/entity"
	"github.com/joseph-ayodele/syllabus-sync/internal/llm"
	"github.com/joseph-ayodele/syllabus-sync/internal/normalize"
	"github.com/joseph-ayodele/syllabus-sync/internal/repository"
	"github.com/joseph-ayodele/syllabus-sync/internal/textextract"
)

// TextExtractor is satisfied by *textextract.Extractor.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, format constants.DocumentFormat) (textextract.Result, error)
}

// Recorder receives ingest outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	Ingest(result string, elapsed time.Duration)
}

type Input struct {
	Data    []byte
	Format  constants.DocumentFormat
	OwnerID string
	// Filename is a hint for the model and the stored object name.
	Filename string
}

// Processor coordinates the ingest stages. Each stage failure is terminal
// for the request; nothing is stored unless every stage succeeds.
type Processor struct {
	logger    *slog.Logger
	text      TextExtractor
	extractor llm.SyllabusExtractor
	blobs     blob.Store
	repo      repository.SyllabusRepository
	recorder  Recorder
}

func NewProcessor(
	logger *slog.Logger,
	text TextExtractor,
	extractor llm.SyllabusExtractor,
	blobs blob.Store,
	repo repository.SyllabusRepository,
	recorder Recorder,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{logger: logger, text: text, extractor: extractor, blobs: blobs, repo: repo, recorder: recorder}
}

// Ingest turns an uploaded document into a stored record. Warnings are the
// soft validation findings also saved on the record.
func (p *Processor) Ingest(ctx context.Context, in Input) (rec *entity.Syllabus, warnings []entity.Warning, err error) {
	start := time.Now()
	defer func() {
		if p.recorder == nil {
			return
		}
		result := "ok"
		if err != nil {
			if result = common.ErrorCode(err); result == "" {
				result = "error"
			}
		}
		p.recorder.Ingest(result, time.Since(start))
	}()

	format, err := resolveFormat(in)
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(in.OwnerID) == "" {
		return nil, nil, common.NewAppError("INVALID_INPUT", "owner id is required", common.ErrInvalidInput)
	}

	// 1) text
	text, err := p.text.Extract(ctx, in.Data, format)
	if err != nil {
		p.logger.Warn("pipeline.extract_text.failed", "owner_id", in.OwnerID, "format", format, "error", err)
		return nil, nil, err
	}
	p.logger.Info("pipeline.extract_text.ok",
		"owner_id", in.OwnerID,
		"method", text.Method,
		"pages", text.Pages,
		"chars", len(text.Text),
	)

	// 2) structured extraction
	candidate, _, err := p.extractor.ExtractSyllabus(ctx, llm.ExtractRequest{Text: text.Text, FilenameHint: in.Filename})
	if err != nil {
		p.logger.Error("pipeline.extract_fields.failed", "owner_id", in.OwnerID, "error", err)
		return nil, nil, err
	}

	// 3) validate
	record, warnings, err := normalize.Normalize(candidate)
	if err != nil {
		p.logger.Warn("pipeline.normalize.rejected", "owner_id", in.OwnerID, "error", err)
		return nil, nil, err
	}

	// 4) store document, then the record
	ref, err := p.blobs.Store(ctx, blob.Object{
		OwnerID:     in.OwnerID,
		Filename:    in.Filename,
		ContentType: constants.ContentTypes[format],
		Data:        in.Data,
	})
	if err != nil {
		p.logger.Error("pipeline.store_document.failed", "owner_id", in.OwnerID, "error", err)
		return nil, nil, common.NewAppError("STORAGE_ERROR", "store source document", errors.Join(common.ErrInternal, err))
	}
	record.OwnerID = in.OwnerID
	record.SourceDocumentRef = ref
	record.SourceFilename = in.Filename

	created, err := p.repo.Create(ctx, &record)
	if err != nil {
		if derr := p.blobs.Delete(context.WithoutCancel(ctx), ref); derr != nil {
			p.logger.Warn("pipeline.cleanup_document.failed", "ref", ref, "error", derr)
		}
		return nil, nil, err
	}

	p.logger.Info("pipeline.ingest.ok",
		"syllabus_id", created.ID,
		"owner_id", in.OwnerID,
		"course", created.Course.Code,
		"warnings", len(warnings),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return created, warnings, nil
}

// resolveFormat prefers the declared format and falls back to the filename.
func resolveFormat(in Input) (constants.DocumentFormat, error) {
	if in.Format != "" {
		if f, ok := constants.ParseDocumentFormat(string(in.Format)); ok {
			return f, nil
		}
		return "", common.NewAppError("UNSUPPORTED_FORMAT", "unsupported format "+string(in.Format), common.ErrUnsupportedFormat)
	}
	if f, ok := constants.FormatFromExt(filepath.Ext(in.Filename)); ok {
		return f, nil
	}
	return "", common.NewAppError("UNSUPPORTED_FORMAT", "cannot infer format of "+in.Filename, common.ErrUnsupportedFormat)
}
