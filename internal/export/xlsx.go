// Package export renders a user's syllabus dates as a spreadsheet or an
// iCalendar file.
package export

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/syllabus-sync/internal/calendar"
	"github.com/joseph-ayodele/syllabus-sync/internal/entity"
)

const datesSheet = "Key Dates"

type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// DatesXLSX returns a workbook with one row per important date, in record
// order and, within a record, the order events are synced in.
func (s *Service) DatesXLSX(records []*entity.Syllabus) ([]byte, error) {
	start := time.Now()
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", datesSheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}
	headers := []string{"Course Code", "Course Name", "Event", "Date", "Term", "Instructor", "Location"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(datesSheet, cell, h)
	}

	row := 2
	for _, rec := range records {
		term := strings.TrimSpace(rec.Term.Semester + " " + rec.Term.Year)
		for _, p := range calendar.PlanEvents(rec) {
			write := func(col int, v any) {
				cell, _ := excelize.CoordinatesToCellName(col, row)
				_ = f.SetCellValue(datesSheet, cell, v)
			}
			write(1, rec.Course.Code)
			write(2, rec.Course.Name)
			write(3, strings.TrimPrefix(p.Event.Summary, rec.Course.Code+" - "))
			write(4, p.Event.Date.String())
			write(5, term)
			write(6, rec.Instructor.Name)
			write(7, rec.MeetingInfo.Location)
			row++
		}
	}

	_ = f.SetColWidth(datesSheet, "A", "A", 14)
	_ = f.SetColWidth(datesSheet, "B", "B", 36)
	_ = f.SetColWidth(datesSheet, "C", "C", 16)
	_ = f.SetColWidth(datesSheet, "D", "E", 14)
	_ = f.SetColWidth(datesSheet, "F", "G", 28)
	if err := f.SetPanes(datesSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		s.logger.Debug("export.xlsx.freeze_failed", "error", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok",
		"records", len(records),
		"rows", row-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
