package export

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/joseph-ayodele/syllabus-sync/internal/calendar"
	"github.com/joseph-ayodele/syllabus-sync/internal/entity"
)

const productID = "-//syllabus-sync//key dates//EN"

// CalendarICS renders every important date as an all-day VEVENT. UIDs are
// stable per date field so re-importing replaces instead of duplicating.
func (s *Service) CalendarICS(records []*entity.Syllabus, now time.Time) ([]byte, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName("School")

	n := 0
	for _, rec := range records {
		for _, p := range calendar.PlanEvents(rec) {
			uid := fmt.Sprintf("%s-%s-%d@syllabus-sync", p.Key.SyllabusID, p.Key.FieldKind, p.Key.OccurrenceIndex)
			ev := cal.AddEvent(uid)
			ev.SetDtStampTime(now.UTC())
			ev.SetSummary(p.Event.Summary)
			ev.SetDescription(p.Event.Description)
			if p.Event.Location != "" {
				ev.SetLocation(p.Event.Location)
			}
			ev.SetAllDayStartAt(p.Event.Date.In(time.UTC))
			ev.SetAllDayEndAt(p.Event.Date.AddDays(1).In(time.UTC))
			ev.SetProperty(ics.ComponentPropertyTransp, "TRANSPARENT")
			n++
		}
	}
	s.logger.Info("export.ics.ok", "records", len(records), "events", n)
	return []byte(cal.Serialize()), nil
}
