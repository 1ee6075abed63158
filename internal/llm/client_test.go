package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/syllabus-sync/internal/common"
)

type reply struct {
	body string
	err  error
}

type scriptedCapability struct {
	mu      sync.Mutex
	replies []reply
	prompts []Prompt
}

func (s *scriptedCapability) Complete(_ context.Context, p Prompt) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, p)
	if len(s.replies) == 0 {
		return nil, errors.New("script exhausted")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return []byte(r.body), r.err
}

type countingObserver struct{ outcomes []string }

func (o *countingObserver) ExtractionAttempt(outcome string) { o.outcomes = append(o.outcomes, outcome) }

const goodReply = "```json\n" + `{
  "course_code": "CS 101",
  "course_title": "Intro to Computing",
  "instructor": {"name": "Dr. Ada Lovelace", "email": "ada@example.edu", "office": "Room 4"},
  "term": {"semester": "Spring", "year": 2026},
  "important_dates": {"first_class": "Jan 12, 2026", "midterm": "03/02/2026", "final_exam": null},
  "grading_policy": {"Homework": 30, "Exams": "70%"},
  "confidence": 0.9
}` + "\n```"

func TestExtractSyllabusHappyPath(t *testing.T) {
	capability := &scriptedCapability{replies: []reply{{body: goodReply}}}
	obs := &countingObserver{}
	c, err := NewClient(capability, nil, WithObserver(obs))
	require.NoError(t, err)

	cand, raw, err := c.ExtractSyllabus(context.Background(), ExtractRequest{Text: "CS 101 syllabus", FilenameHint: "cs101.pdf"})
	require.NoError(t, err)
	assert.NotEmpty(t, raw)

	assert.Equal(t, "CS 101", cand.CourseCode.Value)
	assert.Equal(t, "Intro to Computing", cand.CourseName.Value)
	assert.Equal(t, "ada@example.edu", cand.Instructor.Email.Value)
	assert.Equal(t, "2026", cand.Term.Year.Value)
	assert.Equal(t, []string{"03/02/2026"}, cand.ImportantDates.Midterms.Value)
	assert.False(t, cand.ImportantDates.FinalExam.Set, "null optional is dropped, so the key reads as absent")
	assert.Equal(t, map[string]string{"Homework": "30", "Exams": "70%"}, cand.GradingPolicy.Value)
	assert.Equal(t, []string{OutcomeOK}, obs.outcomes)

	require.Len(t, capability.prompts, 1)
	assert.Contains(t, capability.prompts[0].User, "Filename: cs101.pdf")
	assert.NotContains(t, capability.prompts[0].System, "previous reply was rejected")
}

func TestExtractSyllabusNullCourseFieldsSurvive(t *testing.T) {
	capability := &scriptedCapability{replies: []reply{{body: `{"course_code": null, "course_name": "Physics"}`}}}
	c, err := NewClient(capability, nil)
	require.NoError(t, err)

	cand, _, err := c.ExtractSyllabus(context.Background(), ExtractRequest{Text: "physics"})
	require.NoError(t, err)
	assert.True(t, cand.CourseCode.Set)
	assert.True(t, cand.CourseCode.Null)
	_, ok := cand.CourseCode.Get()
	assert.False(t, ok)
}

func TestExtractSyllabusRetriesMalformedThenSucceeds(t *testing.T) {
	capability := &scriptedCapability{replies: []reply{
		{body: "Sure! Here is the syllabus you asked for."},
		{body: `{"course_name": "Missing code key"}`},
		{body: `{"course_code": "BIO 210", "course_name": "Genetics"}`},
	}}
	obs := &countingObserver{}
	c, err := NewClient(capability, nil, WithObserver(obs))
	require.NoError(t, err)

	cand, _, err := c.ExtractSyllabus(context.Background(), ExtractRequest{Text: "bio"})
	require.NoError(t, err)
	assert.Equal(t, "BIO 210", cand.CourseCode.Value)
	assert.Equal(t, []string{OutcomeInvalid, OutcomeInvalid, OutcomeOK}, obs.outcomes)

	require.Len(t, capability.prompts, 3)
	assert.Equal(t, 2, capability.prompts[2].Attempt)
	assert.Contains(t, capability.prompts[1].System, "previous reply was rejected")
	assert.Contains(t, capability.prompts[2].System, "previous reply was rejected")
}

func TestExtractSyllabusExhaustsRetries(t *testing.T) {
	capability := &scriptedCapability{replies: []reply{
		{err: ErrMalformedOutput},
		{body: "[]"},
		{body: "not json"},
	}}
	c, err := NewClient(capability, nil, WithMaxRetries(2))
	require.NoError(t, err)

	_, _, err = c.ExtractSyllabus(context.Background(), ExtractRequest{Text: "x"})
	require.ErrorIs(t, err, common.ErrExtractionFailed)
	assert.Equal(t, "EXTRACTION_FAILED", common.ErrorCode(err))
	assert.Len(t, capability.prompts, 3)
}

func TestExtractSyllabusUnavailableIsNotRetried(t *testing.T) {
	capability := &scriptedCapability{replies: []reply{
		{err: errors.New("dial tcp: connection refused")},
		{body: `{"course_code": "X", "course_name": "Y"}`},
	}}
	obs := &countingObserver{}
	c, err := NewClient(capability, nil, WithObserver(obs))
	require.NoError(t, err)

	_, _, err = c.ExtractSyllabus(context.Background(), ExtractRequest{Text: "x"})
	require.ErrorIs(t, err, common.ErrCapabilityUnavailable)
	assert.Len(t, capability.prompts, 1)
	assert.Equal(t, []string{OutcomeUnavailable}, obs.outcomes)
}

func TestExtractSyllabusCancelledContext(t *testing.T) {
	capability := &scriptedCapability{}
	c, err := NewClient(capability, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = c.ExtractSyllabus(ctx, ExtractRequest{Text: "x"})
	require.ErrorIs(t, err, common.ErrCapabilityUnavailable)
	assert.Empty(t, capability.prompts)
}

func TestBuildUserPromptTruncates(t *testing.T) {
	long := strings.Repeat("é", 50)
	p := BuildUserPrompt(ExtractRequest{Text: long}, map[string]any{"type": "object"}, 10)
	assert.Contains(t, p, strings.Repeat("é", 10)+"\n…(truncated)")
	assert.NotContains(t, p, strings.Repeat("é", 11))
}
