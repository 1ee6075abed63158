package calendar

import (
	"fmt"
	"strings"

	"github.com/joseph-ayodele/syllabus-sync/constants"
	"github.com/joseph-ayodele/syllabus-sync/internal/entity"
)

// PlannedEvent is one date field of a syllabus and the event it should produce.
type PlannedEvent struct {
	Key   entity.MappingKey
	Event Event
}

// PlanEvents lists the events for every populated date of s, in the order
// first class, last class, midterms, final exam.
func PlanEvents(s *entity.Syllabus) []PlannedEvent {
	d := s.ImportantDates
	out := make([]PlannedEvent, 0, 3+len(d.Midterms))
	add := func(kind constants.DateFieldKind, idx int, date *entity.Date) {
		if date == nil || date.IsZero() {
			return
		}
		out = append(out, PlannedEvent{
			Key:   entity.MappingKey{SyllabusID: s.ID, FieldKind: kind, OccurrenceIndex: idx},
			Event: buildEvent(s, kind, idx, *date),
		})
	}
	add(constants.FieldFirstClass, 0, d.FirstClass)
	add(constants.FieldLastClass, 0, d.LastClass)
	for i := range d.Midterms {
		add(constants.FieldMidterm, i, &d.Midterms[i])
	}
	add(constants.FieldFinalExam, 0, d.FinalExam)
	return out
}

func buildEvent(s *entity.Syllabus, kind constants.DateFieldKind, idx int, date entity.Date) Event {
	label := kind.Label()
	if kind == constants.FieldMidterm {
		label = fmt.Sprintf("%s %d", label, idx+1)
	}
	return Event{
		Summary:     s.Course.Code + " - " + label,
		Description: describe(label, s.Course.Name),
		Location:    s.MeetingInfo.Location,
		Date:        date,
	}
}

// describe turns "First Class" into "First class for <name>".
func describe(label, courseName string) string {
	words := strings.Fields(label)
	for i := 1; i < len(words); i++ {
		words[i] = strings.ToLower(words[i])
	}
	return strings.Join(words, " ") + " for " + courseName
}
