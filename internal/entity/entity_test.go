package entity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate(t *testing.T) {
	d, err := ParseISODate("2026-12-31")
	require.NoError(t, err)
	assert.Equal(t, NewDate(2027, time.January, 1), d.AddDays(1))
	assert.Equal(t, "2026-02-28", NewDate(2026, time.March, 0).String())
	assert.True(t, d.After(NewDate(2026, time.January, 5)))
	assert.True(t, NewDate(2025, time.December, 31).Before(d))
	assert.Equal(t, 0, d.Compare(NewDate(2026, time.December, 31)))
	assert.True(t, Date{}.IsZero())

	loc := time.FixedZone("EST", -5*3600)
	assert.Equal(t, time.Date(2026, time.December, 31, 0, 0, 0, 0, loc), d.In(loc))

	_, err = ParseISODate("12/31/2026")
	assert.Error(t, err)
}

func TestDateScan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan("2026-03-02"))
	assert.Equal(t, NewDate(2026, time.March, 2), d)
	require.NoError(t, d.Scan([]byte("2026-03-03")))
	assert.Equal(t, NewDate(2026, time.March, 3), d)
	require.NoError(t, d.Scan(time.Date(2026, time.March, 4, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, NewDate(2026, time.March, 4), d)
	assert.Error(t, d.Scan(42))

	v, err := d.Value()
	require.NoError(t, err)
	assert.Equal(t, "2026-03-04", v)
}

func TestOptionalJSON(t *testing.T) {
	var p SyllabusPatch
	require.NoError(t, json.Unmarshal([]byte(`{"description":"Labs","first_class":null,"midterms":["2026-03-02"]}`), &p))

	desc, ok := p.Description.Get()
	assert.True(t, ok)
	assert.Equal(t, "Labs", desc)

	assert.True(t, p.FirstClass.Set)
	assert.True(t, p.FirstClass.Null)
	_, ok = p.FirstClass.Get()
	assert.False(t, ok)

	assert.False(t, p.CourseCode.Set)
	assert.Equal(t, "fallback", p.CourseCode.OrElse("fallback"))
	assert.Equal(t, []Date{NewDate(2026, time.March, 2)}, p.Midterms.Value)
}

func TestPatchJSONOmitsAbsentFields(t *testing.T) {
	p := SyllabusPatch{Description: Some("Labs"), FinalExam: Clear[Date]()}
	b, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"description":"Labs","final_exam":null}`, string(b))

	var back SyllabusPatch
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, p, back)
}

func TestSyllabusClone(t *testing.T) {
	first := NewDate(2026, time.January, 12)
	s := &Syllabus{
		ID:             uuid.New(),
		ImportantDates: ImportantDates{FirstClass: &first, Midterms: []Date{NewDate(2026, time.March, 2)}},
		GradingPolicy:  map[string]string{"exams": "50%"},
		Warnings:       []Warning{{Code: WarnInvalidEmail}},
	}
	c := s.Clone()
	c.ImportantDates.FirstClass.Day = 13
	c.ImportantDates.Midterms[0].Day = 3
	c.GradingPolicy["exams"] = "60%"
	c.Warnings[0].Code = WarnInvalidTermYear

	assert.Equal(t, 12, s.ImportantDates.FirstClass.Day)
	assert.Equal(t, 2, s.ImportantDates.Midterms[0].Day)
	assert.Equal(t, "50%", s.GradingPolicy["exams"])
	assert.Equal(t, WarnInvalidEmail, s.Warnings[0].Code)
	assert.Nil(t, (*Syllabus)(nil).Clone())
}

func TestMappingKey(t *testing.T) {
	id := uuid.New()
	m := SyncEventMapping{SyllabusID: id, FieldKind: "midterm", OccurrenceIndex: 1}
	assert.Equal(t, MappingKey{SyllabusID: id, FieldKind: "midterm", OccurrenceIndex: 1}, m.Key())
}
