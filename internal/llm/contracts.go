package llm

import (
	"context"
	"errors"

	"github.com/joseph-ayodele/syllabus-sync/internal/entity"
)

// CandidateSyllabus is the unvalidated shape returned by the model. Every
// field is optional so "not found" stays distinguishable from "found but empty".
type CandidateSyllabus struct {
	CourseCode      entity.Optional[string]            `json:"course_code"`
	CourseName      entity.Optional[string]            `json:"course_name"`
	Instructor      CandidateInstructor                `json:"instructor"`
	Term            CandidateTerm                      `json:"term"`
	Description     entity.Optional[string]            `json:"description"`
	MeetingInfo     CandidateMeetingInfo               `json:"meeting_info"`
	ImportantDates  CandidateDates                     `json:"important_dates"`
	GradingPolicy   entity.Optional[map[string]string] `json:"grading_policy"`
	ScheduleSummary entity.Optional[string]            `json:"schedule_summary"`
}

type CandidateInstructor struct {
	Name  entity.Optional[string] `json:"name"`
	Email entity.Optional[string] `json:"email"`
}

type CandidateTerm struct {
	Semester entity.Optional[string] `json:"semester"`
	Year     entity.Optional[string] `json:"year"`
}

type CandidateMeetingInfo struct {
	Days     entity.Optional[string] `json:"days"`
	Time     entity.Optional[string] `json:"time"`
	Location entity.Optional[string] `json:"location"`
}

// CandidateDates holds raw date strings in whatever format the document used.
type CandidateDates struct {
	FirstClass entity.Optional[string]   `json:"first_class"`
	LastClass  entity.Optional[string]   `json:"last_class"`
	Midterms   entity.Optional[[]string] `json:"midterms"`
	FinalExam  entity.Optional[string]   `json:"final_exam"`
}

type ExtractRequest struct {
	Text         string
	FilenameHint string
}

// SyllabusExtractor is the interface the ingestion pipeline depends on.
type SyllabusExtractor interface {
	ExtractSyllabus(ctx context.Context, req ExtractRequest) (CandidateSyllabus, []byte /*rawJSON*/, error)
}

// Prompt is one request to the text-understanding capability.
type Prompt struct {
	System  string
	User    string
	Schema  map[string]any
	Attempt int
}

// Capability is the black-box model: text plus schema in, candidate JSON out.
// Implementations wrap transport and auth failures with
// common.ErrCapabilityUnavailable and unusable replies with ErrMalformedOutput.
type Capability interface {
	Complete(ctx context.Context, p Prompt) ([]byte, error)
}

// ErrMalformedOutput marks a reply that arrived but could not be used.
var ErrMalformedOutput = errors.New("malformed model output")
