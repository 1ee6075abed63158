// Package normalize turns an extraction candidate into a valid syllabus
// record and reports the soft violations a user should review.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/syllabus-sync/constants"
	"github.com/joseph-ayodele/syllabus-sync/internal/common"
	"github.com/joseph-ayodele/syllabus-sync/internal/entity"
	"github.com/joseph-ayodele/syllabus-sync/internal/llm"
)

const maxCourseCodeLen = 64

var yearRe = regexp.MustCompile(`^\d{4}$`)

var semesters = map[string]string{
	"fall": "Fall", "autumn": "Fall", "spring": "Spring",
	"summer": "Summer", "winter": "Winter",
}

// Normalize validates a candidate. A missing course code or name is a hard
// rejection; every other problem degrades the field and adds a warning.
func Normalize(c llm.CandidateSyllabus) (entity.Syllabus, []entity.Warning, error) {
	code := strings.TrimSpace(c.CourseCode.OrElse(""))
	name := strings.TrimSpace(c.CourseName.OrElse(""))

	v := common.NewValidator().
		Field("course_code", code, common.Required, common.MaxLength(maxCourseCodeLen)).
		Field("course_name", name, common.Required)
	if err := v.Err("INCOMPLETE_RECORD", common.ErrIncompleteRecord); err != nil {
		return entity.Syllabus{}, nil, err
	}

	var warnings []entity.Warning
	warn := func(code, field, msg string) {
		warnings = append(warnings, entity.Warning{Code: code, Field: field, Message: msg})
	}

	s := entity.Syllabus{
		Course:          entity.Course{Code: code, Name: name},
		Description:     strings.TrimSpace(c.Description.OrElse("")),
		ScheduleSummary: strings.TrimSpace(c.ScheduleSummary.OrElse("")),
		AccentColor:     constants.DefaultAccentColor,
		MeetingInfo: entity.MeetingInfo{
			Days:     strings.TrimSpace(c.MeetingInfo.Days.OrElse("")),
			Time:     strings.TrimSpace(c.MeetingInfo.Time.OrElse("")),
			Location: strings.TrimSpace(c.MeetingInfo.Location.OrElse("")),
		},
		Instructor: entity.Instructor{Name: strings.TrimSpace(c.Instructor.Name.OrElse(""))},
	}

	if email := strings.TrimSpace(c.Instructor.Email.OrElse("")); email != "" {
		if strings.Contains(email, "@") {
			s.Instructor.Email = email
		} else {
			warn(entity.WarnInvalidEmail, "instructor.email", fmt.Sprintf("%q is not an email address", email))
		}
	}

	s.Term.Semester = canonicalSemester(c.Term.Semester.OrElse(""))
	defaultYear := 0
	if year := strings.TrimSpace(c.Term.Year.OrElse("")); year != "" {
		if yearRe.MatchString(year) {
			s.Term.Year = year
			defaultYear, _ = strconv.Atoi(year)
		} else {
			warn(entity.WarnInvalidTermYear, "term.year", fmt.Sprintf("%q is not a four-digit year", year))
		}
	}

	date := func(field string, o entity.Optional[string]) *entity.Date {
		raw := strings.TrimSpace(o.OrElse(""))
		if raw == "" {
			return nil
		}
		d, err := ParseDate(raw, defaultYear)
		if err != nil {
			warn(entity.WarnUnparseableDate, field, err.Error())
			return nil
		}
		return &d
	}
	s.ImportantDates.FirstClass = date("important_dates.first_class", c.ImportantDates.FirstClass)
	s.ImportantDates.LastClass = date("important_dates.last_class", c.ImportantDates.LastClass)
	s.ImportantDates.FinalExam = date("important_dates.final_exam", c.ImportantDates.FinalExam)
	s.ImportantDates.Midterms = []entity.Date{}
	for i, raw := range c.ImportantDates.Midterms.OrElse(nil) {
		if d := date(fmt.Sprintf("important_dates.midterms[%d]", i), entity.Some(raw)); d != nil {
			s.ImportantDates.Midterms = append(s.ImportantDates.Midterms, *d)
		}
	}

	if gp, ok := c.GradingPolicy.Get(); ok && len(gp) > 0 {
		s.GradingPolicy = make(map[string]string, len(gp))
		for k, val := range gp {
			if k = strings.TrimSpace(k); k != "" {
				s.GradingPolicy[k] = strings.TrimSpace(val)
			}
		}
	}

	warnings = append(warnings, Validate(&s)...)
	s.Warnings = warnings
	return s, warnings, nil
}

// Validate checks the cross-field rules of a record. It never fails:
// every finding is a warning and the record stays usable.
func Validate(s *entity.Syllabus) []entity.Warning {
	var out []entity.Warning
	d := s.ImportantDates

	if d.FirstClass != nil && d.LastClass != nil && d.FinalExam != nil {
		if d.FirstClass.After(*d.LastClass) || d.LastClass.After(*d.FinalExam) {
			out = append(out, entity.Warning{
				Code:  entity.WarnDateOrderViolation,
				Field: "important_dates",
				Message: fmt.Sprintf("expected first class (%s) <= last class (%s) <= final exam (%s)",
					d.FirstClass, d.LastClass, d.FinalExam),
			})
		}
	}

	for i, m := range d.Midterms {
		if (d.FirstClass != nil && m.Before(*d.FirstClass)) || (d.LastClass != nil && m.After(*d.LastClass)) {
			out = append(out, entity.Warning{
				Code:    entity.WarnMidtermOutOfRange,
				Field:   fmt.Sprintf("important_dates.midterms[%d]", i),
				Message: fmt.Sprintf("midterm %s falls outside the class period", m),
			})
		}
	}

	if e := s.Instructor.Email; e != "" && !strings.Contains(e, "@") {
		out = append(out, entity.Warning{Code: entity.WarnInvalidEmail, Field: "instructor.email",
			Message: fmt.Sprintf("%q is not an email address", e)})
	}
	if y := s.Term.Year; y != "" && !yearRe.MatchString(y) {
		out = append(out, entity.Warning{Code: entity.WarnInvalidTermYear, Field: "term.year",
			Message: fmt.Sprintf("%q is not a four-digit year", y)})
	}
	return out
}

func canonicalSemester(s string) string {
	s = strings.TrimSpace(s)
	if c, ok := semesters[strings.ToLower(s)]; ok {
		return c
	}
	return s
}
