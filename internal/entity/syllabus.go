package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/syllabus-sync/constants"
)

// Syllabus is a validated syllabus record for data transfer between layers.
type Syllabus struct {
	ID                uuid.UUID             `json:"id"`
	OwnerID           string                `json:"owner_id"`
	Course            Course                `json:"course"`
	Instructor        Instructor            `json:"instructor"`
	Term              Term                  `json:"term"`
	MeetingInfo       MeetingInfo           `json:"meeting_info"`
	ImportantDates    ImportantDates        `json:"important_dates"`
	Description       string                `json:"description"`
	GradingPolicy     map[string]string     `json:"grading_policy"`
	ScheduleSummary   string                `json:"schedule_summary"`
	AccentColor       constants.AccentColor `json:"accent_color"`
	SourceDocumentRef string                `json:"source_document_ref"`
	SourceFilename    string                `json:"source_filename"`
	Warnings          []Warning             `json:"warnings"`
	Version           int                   `json:"version"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

type Course struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type Instructor struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type Term struct {
	Semester string `json:"semester,omitempty"`
	Year     string `json:"year,omitempty"`
}

type MeetingInfo struct {
	Days     string `json:"days,omitempty"`
	Time     string `json:"time,omitempty"`
	Location string `json:"location,omitempty"`
}

type ImportantDates struct {
	FirstClass *Date  `json:"first_class,omitempty"`
	LastClass  *Date  `json:"last_class,omitempty"`
	Midterms   []Date `json:"midterms"`
	FinalExam  *Date  `json:"final_exam,omitempty"`
}

// Clone returns a deep copy so callers can mutate without aliasing storage.
func (s *Syllabus) Clone() *Syllabus {
	if s == nil {
		return nil
	}
	out := *s
	out.ImportantDates.FirstClass = cloneDate(s.ImportantDates.FirstClass)
	out.ImportantDates.LastClass = cloneDate(s.ImportantDates.LastClass)
	out.ImportantDates.FinalExam = cloneDate(s.ImportantDates.FinalExam)
	out.ImportantDates.Midterms = append([]Date(nil), s.ImportantDates.Midterms...)
	if s.GradingPolicy != nil {
		out.GradingPolicy = make(map[string]string, len(s.GradingPolicy))
		for k, v := range s.GradingPolicy {
			out.GradingPolicy[k] = v
		}
	}
	out.Warnings = append([]Warning(nil), s.Warnings...)
	return &out
}

func cloneDate(d *Date) *Date {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// Warning codes attached to otherwise successful results.
const (
	WarnDateOrderViolation = "DATE_ORDER_VIOLATION"
	WarnMidtermOutOfRange  = "MIDTERM_OUT_OF_RANGE"
	WarnUnparseableDate    = "UNPARSEABLE_DATE"
	WarnInvalidEmail       = "INVALID_EMAIL"
	WarnInvalidTermYear    = "INVALID_TERM_YEAR"
	WarnUnknownAccentColor = "UNKNOWN_ACCENT_COLOR"
)

// Warning is a non-fatal validation finding the user may want to review.
type Warning struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// SyllabusPatch carries a partial update. Only fields with Set == true are
// applied; a null date clears it.
type SyllabusPatch struct {
	CourseCode      Optional[string]            `json:"course_code,omitzero"`
	CourseName      Optional[string]            `json:"course_name,omitzero"`
	InstructorName  Optional[string]            `json:"instructor_name,omitzero"`
	InstructorEmail Optional[string]            `json:"instructor_email,omitzero"`
	Semester        Optional[string]            `json:"semester,omitzero"`
	Year            Optional[string]            `json:"year,omitzero"`
	MeetingDays     Optional[string]            `json:"meeting_days,omitzero"`
	MeetingTime     Optional[string]            `json:"meeting_time,omitzero"`
	MeetingLocation Optional[string]            `json:"meeting_location,omitzero"`
	Description     Optional[string]            `json:"description,omitzero"`
	GradingPolicy   Optional[map[string]string] `json:"grading_policy,omitzero"`
	ScheduleSummary Optional[string]            `json:"schedule_summary,omitzero"`
	AccentColor     Optional[string]            `json:"accent_color,omitzero"`
	FirstClass      Optional[Date]              `json:"first_class,omitzero"`
	LastClass       Optional[Date]              `json:"last_class,omitzero"`
	FinalExam       Optional[Date]              `json:"final_exam,omitzero"`
	Midterms        Optional[[]Date]            `json:"midterms,omitzero"`

	// ExpectedVersion, when non-zero, must match the stored version.
	ExpectedVersion int `json:"expected_version,omitempty"`
}
