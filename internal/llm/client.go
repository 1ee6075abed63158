package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/syllabus-sync/internal/common"
)

// Attempt outcomes reported to an AttemptObserver.
const (
	OutcomeOK          = "ok"
	OutcomeMalformed   = "malformed"
	OutcomeInvalid     = "invalid"
	OutcomeUnavailable = "unavailable"
)

// AttemptObserver receives one call per capability attempt.
type AttemptObserver interface {
	ExtractionAttempt(outcome string)
}

// Client turns document text into a CandidateSyllabus using a Capability,
// retrying malformed replies with a stricter prompt.
type Client struct {
	capability     Capability
	schema         map[string]any
	compiled       *jsonschema.Schema
	maxRetries     int
	attemptTimeout time.Duration
	maxInputChars  int
	observer       AttemptObserver
	logger         *slog.Logger
}

type Option func(*Client)

// WithMaxRetries sets how many extra attempts follow a malformed reply.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.attemptTimeout = d
		}
	}
}

func WithMaxInputChars(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxInputChars = n
		}
	}
}

func WithObserver(o AttemptObserver) Option {
	return func(c *Client) { c.observer = o }
}

func NewClient(capability Capability, logger *slog.Logger, opts ...Option) (*Client, error) {
	if capability == nil {
		return nil, errors.New("llm: capability is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	schema := BuildSyllabusJSONSchema()
	compiled, err := CompileSchema(schema)
	if err != nil {
		return nil, err
	}
	c := &Client{
		capability:     capability,
		schema:         schema,
		compiled:       compiled,
		maxRetries:     2,
		attemptTimeout: 45 * time.Second,
		maxInputChars:  DefaultMaxInputChars,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ SyllabusExtractor = (*Client)(nil)

// ExtractSyllabus implements SyllabusExtractor.
func (c *Client) ExtractSyllabus(ctx context.Context, req ExtractRequest) (CandidateSyllabus, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()
	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"text_len", len(req.Text),
		"filename", req.FilenameHint,
		"max_retries", c.maxRetries,
	)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return CandidateSyllabus{}, nil, unavailable(err)
		}

		prompt := Prompt{
			System:  BuildSystemPrompt(attempt, lastErr),
			User:    BuildUserPrompt(req, c.schema, c.maxInputChars),
			Schema:  c.schema,
			Attempt: attempt,
		}
		actx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
		raw, err := c.capability.Complete(actx, prompt)
		cancel()

		if err != nil {
			if errors.Is(err, ErrMalformedOutput) && ctx.Err() == nil {
				lastErr = err
				c.observe(OutcomeMalformed)
				c.logger.Warn("llm.extract.malformed", "req_id", rid, "attempt", attempt, "error", err)
				continue
			}
			c.observe(OutcomeUnavailable)
			c.logger.Error("llm.extract.unavailable",
				"req_id", rid, "attempt", attempt, "error", err,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return CandidateSyllabus{}, nil, unavailable(err)
		}

		cand, cleaned, err := c.decode(raw)
		if err != nil {
			lastErr = err
			c.observe(OutcomeInvalid)
			c.logger.Warn("llm.extract.schema_validation_failed",
				"req_id", rid, "attempt", attempt, "error", err, "raw_bytes", len(raw))
			continue
		}

		c.observe(OutcomeOK)
		c.logger.Info("llm.extract.ok",
			"req_id", rid,
			"attempt", attempt,
			"course_code", cand.CourseCode.Value,
			"midterms", len(cand.ImportantDates.Midterms.Value),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return cand, cleaned, nil
	}

	c.logger.Error("llm.extract.exhausted",
		"req_id", rid, "attempts", c.maxRetries+1, "error", lastErr,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return CandidateSyllabus{}, nil, common.NewAppError("EXTRACTION_FAILED",
		fmt.Sprintf("no usable reply after %d attempts", c.maxRetries+1),
		fmt.Errorf("%w: %v", common.ErrExtractionFailed, lastErr))
}

// decode sanitizes the reply, checks it against the schema and maps it onto
// the candidate type. Every failure here is a malformed reply.
func (c *Client) decode(raw []byte) (CandidateSyllabus, []byte, error) {
	cleaned, _, err := NormalizeAndSanitizeJSON(raw, c.logger)
	if err != nil {
		return CandidateSyllabus{}, nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if err := ValidateJSON(c.compiled, cleaned); err != nil {
		return CandidateSyllabus{}, nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	var out CandidateSyllabus
	if err := json.Unmarshal(cleaned, &out); err != nil {
		return CandidateSyllabus{}, nil, fmt.Errorf("%w: unmarshal fields: %v", ErrMalformedOutput, err)
	}
	return out, cleaned, nil
}

func (c *Client) observe(outcome string) {
	if c.observer != nil {
		c.observer.ExtractionAttempt(outcome)
	}
}

func unavailable(err error) error {
	return common.NewAppError("CAPABILITY_UNAVAILABLE", "extraction capability unavailable",
		fmt.Errorf("%w: %v", common.ErrCapabilityUnavailable, err))
}
