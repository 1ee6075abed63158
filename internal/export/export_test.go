package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/syllabus-sync/internal/entity"
)

func date(y int, m time.Month, d int) *entity.Date {
	v := entity.NewDate(y, m, d)
	return &v
}

func records() []*entity.Syllabus {
	return []*entity.Syllabus{
		{
			ID:          uuid.MustParse("11111111-1111-1111-1111-111111111111"),
			Course:      entity.Course{Code: "CS 101", Name: "Intro to Computing"},
			Instructor:  entity.Instructor{Name: "Dr. Ada"},
			Term:        entity.Term{Semester: "Spring", Year: "2026"},
			MeetingInfo: entity.MeetingInfo{Location: "Hall 2"},
			ImportantDates: entity.ImportantDates{
				FirstClass: date(2026, time.January, 12),
				Midterms:   []entity.Date{entity.NewDate(2026, time.March, 2)},
				FinalExam:  date(2026, time.May, 4),
			},
		},
		{
			ID:     uuid.MustParse("22222222-2222-2222-2222-222222222222"),
			Course: entity.Course{Code: "MATH 200", Name: "Linear Algebra"},
			ImportantDates: entity.ImportantDates{
				LastClass: date(2026, time.April, 30),
			},
		},
	}
}

func TestDatesXLSX(t *testing.T) {
	out, err := NewService(nil).DatesXLSX(records())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(datesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"Course Code", "Course Name", "Event", "Date", "Term", "Instructor", "Location"}, rows[0])
	assert.Equal(t, []string{"CS 101", "Intro to Computing", "First Class", "2026-01-12", "Spring 2026", "Dr. Ada", "Hall 2"}, rows[1])
	assert.Equal(t, "Midterm 1", rows[2][2])
	assert.Equal(t, "Final Exam", rows[3][2])
	assert.Equal(t, "MATH 200", rows[4][0])
	assert.Equal(t, "2026-04-30", rows[4][3])
}

func TestDatesXLSXEmpty(t *testing.T) {
	out, err := NewService(nil).DatesXLSX(nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(datesSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestCalendarICS(t *testing.T) {
	now := time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)
	out, err := NewService(nil).CalendarICS(records(), now)
	require.NoError(t, err)

	cal, err := ics.ParseCalendar(bytes.NewReader(out))
	require.NoError(t, err)
	events := cal.Events()
	require.Len(t, events, 4)

	first := events[0]
	assert.Equal(t, "11111111-1111-1111-1111-111111111111-first_class-0@syllabus-sync", first.Id())
	assert.Equal(t, "CS 101 - First Class", first.GetProperty(ics.ComponentPropertySummary).Value)
	assert.Equal(t, "Hall 2", first.GetProperty(ics.ComponentPropertyLocation).Value)
	assert.Equal(t, "20260112", first.GetProperty(ics.ComponentPropertyDtStart).Value)
	assert.Equal(t, "20260113", first.GetProperty(ics.ComponentPropertyDtEnd).Value)

	assert.Nil(t, events[3].GetProperty(ics.ComponentPropertyLocation))
	assert.True(t, strings.Contains(string(out), "BEGIN:VCALENDAR"))
}
