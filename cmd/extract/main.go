package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/syllabus-sync/constants"
	"github.com/joseph-ayodele/syllabus-sync/internal/common"
	"github.com/joseph-ayodele/syllabus-sync/internal/entity"
	"github.com/joseph-ayodele/syllabus-sync/internal/llm"
	"github.com/joseph-ayodele/syllabus-sync/internal/llm/openai"
	"github.com/joseph-ayodele/syllabus-sync/internal/normalize"
	"github.com/joseph-ayodele/syllabus-sync/internal/secret"
	"github.com/joseph-ayodele/syllabus-sync/internal/textextract"
)

// extract runs one local document through text extraction, the model and
// normalization without touching storage.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		logger.Error("usage: extract <file.pdf|file.docx|file.txt>")
		os.Exit(2)
	}
	path := os.Args[1]
	format, ok := constants.FormatFromExt(filepath.Ext(path))
	if !ok {
		logger.Error("unsupported file extension", "path", path)
		os.Exit(2)
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	if err := secret.Fill(ctx, secret.NewEnvResolver(), "openai-api-key", &cfg.LLM.APIKey); err != nil || cfg.LLM.APIKey == "" {
		logger.Error("OPENAI_API_KEY env var is required")
		os.Exit(2)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read file", "path", path, "error", err)
		os.Exit(1)
	}

	text, err := textextract.NewExtractor(textextract.Config{
		Pdftotext: cfg.Extractor.Pdftotext,
		MaxBytes:  cfg.Extractor.MaxBytes,
		Timeout:   cfg.Extractor.Timeout,
	}, logger).Extract(ctx, data, format)
	if err != nil {
		logger.Error("text extraction failed", "path", path, "error", err)
		os.Exit(1)
	}

	client, err := llm.NewClient(openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger), logger, llm.WithMaxRetries(cfg.LLM.MaxRetries), llm.WithMaxInputChars(cfg.LLM.MaxInputChars))
	if err != nil {
		logger.Error("build extraction client", "error", err)
		os.Exit(1)
	}

	candidate, _, err := client.ExtractSyllabus(ctx, llm.ExtractRequest{Text: text.Text, FilenameHint: filepath.Base(path)})
	if err != nil {
		logger.Error("structured extraction failed", "error", err)
		os.Exit(1)
	}
	record, warnings, err := normalize.Normalize(candidate)
	if err != nil {
		logger.Error("record rejected", "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(struct {
		Record   entity.Syllabus  `json:"record"`
		Warnings []entity.Warning `json:"warnings"`
		Method   string           `json:"text_method"`
		Pages    int              `json:"pages"`
	}{record, warnings, text.Method, text.Pages}); err != nil {
		logger.Error("write output", "error", err)
		os.Exit(1)
	}
}
