package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/syllabus-sync/internal/entity"
)

// ErrUnparseableDate is returned by ParseDate for text that is not a calendar date.
var ErrUnparseableDate = errors.New("unparseable date")

var (
	isoPrefixRe = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})(?:[t ].*)?$`)
	numericRe   = regexp.MustCompile(`^(\d{1,4})[/.\-](\d{1,2})(?:[/.\-](\d{2}|\d{4}))?$`)
	ordinalRe   = regexp.MustCompile(`(\d{1,2})(?:st|nd|rd|th)\b`)
	wordRe      = regexp.MustCompile(`[a-z]+|\d+`)
)

var months = []string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

var weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// filler words that may sit between the parts of a written date
var fillers = map[string]struct{}{"of": {}, "the": {}, "on": {}}

// ParseDate parses the date formats syllabi tend to use:
//
//	2026-01-05, 01/05/2026, 1/5/26, 13/01/2026 (day first when the month can't be),
//	Jan 5, 2026, January 5 2026, 5 January 2026, Mon, Jan 5, Sept. 3rd
//
// defaultYear fills in dates written without a year; 0 means such dates fail.
func ParseDate(s string, defaultYear int) (entity.Date, error) {
	in := strings.ToLower(strings.TrimSpace(s))
	if in == "" {
		return entity.Date{}, fmt.Errorf("%w: empty", ErrUnparseableDate)
	}

	if m := isoPrefixRe.FindStringSubmatch(in); m != nil {
		return build(s, atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}
	if m := numericRe.FindStringSubmatch(in); m != nil {
		return parseNumeric(s, m[1], m[2], m[3], defaultYear)
	}
	return parseWritten(s, in, defaultYear)
}

func parseNumeric(orig, a, b, c string, defaultYear int) (entity.Date, error) {
	if len(a) == 4 {
		if c == "" {
			return entity.Date{}, fmt.Errorf("%w: %q has no day", ErrUnparseableDate, orig)
		}
		return build(orig, atoi(a), atoi(b), atoi(c))
	}
	if len(a) > 2 {
		return entity.Date{}, fmt.Errorf("%w: %q", ErrUnparseableDate, orig)
	}
	month, day := atoi(a), atoi(b)
	// US order unless the first part cannot be a month
	if month > 12 && day <= 12 {
		month, day = day, month
	}
	year := defaultYear
	switch len(c) {
	case 2:
		year = 2000 + atoi(c)
	case 4:
		year = atoi(c)
	}
	if year == 0 {
		return entity.Date{}, fmt.Errorf("%w: %q has no year", ErrUnparseableDate, orig)
	}
	return build(orig, year, month, day)
}

func parseWritten(orig, in string, defaultYear int) (entity.Date, error) {
	in = ordinalRe.ReplaceAllString(in, "$1")
	var year, month, day int
	for _, tok := range wordRe.FindAllString(in, -1) {
		if n, err := strconv.Atoi(tok); err == nil {
			switch {
			case len(tok) == 4 && year == 0:
				year = n
			case len(tok) <= 2 && day == 0:
				day = n
			default:
				return entity.Date{}, fmt.Errorf("%w: %q", ErrUnparseableDate, orig)
			}
			continue
		}
		if _, ok := fillers[tok]; ok {
			continue
		}
		if isPrefixOf(tok, weekdays) >= 0 {
			continue
		}
		if i := isPrefixOf(tok, months); i >= 0 && month == 0 {
			month = i + 1
			continue
		}
		return entity.Date{}, fmt.Errorf("%w: %q", ErrUnparseableDate, orig)
	}
	if month == 0 || day == 0 {
		return entity.Date{}, fmt.Errorf("%w: %q", ErrUnparseableDate, orig)
	}
	if year == 0 {
		year = defaultYear
	}
	if year == 0 {
		return entity.Date{}, fmt.Errorf("%w: %q has no year", ErrUnparseableDate, orig)
	}
	return build(orig, year, month, day)
}

// isPrefixOf matches abbreviations of at least three letters ("sept", "wed").
func isPrefixOf(tok string, names []string) int {
	if len(tok) < 3 {
		return -1
	}
	for i, n := range names {
		if strings.HasPrefix(n, tok) {
			return i
		}
	}
	return -1
}

// build rejects values time.Date would silently roll over, like Feb 30.
func build(orig string, year, month, day int) (entity.Date, error) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return entity.Date{}, fmt.Errorf("%w: %q", ErrUnparseableDate, orig)
	}
	d := entity.NewDate(year, time.Month(month), day)
	if d.Year != year || int(d.Month) != month || d.Day != day {
		return entity.Date{}, fmt.Errorf("%w: %q is not a real day", ErrUnparseableDate, orig)
	}
	return d, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
