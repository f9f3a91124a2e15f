package planner

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"itsdu-backend/lib/timezone"
)

// DateRange is a schedule span scraped from the planner. Either side
// may be nil; a fully nil range means the row simply carries no
// schedule information, which is not an error.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// The planner renders spans in one of two shapes, separated by an
// en-dash (never a hyphen):
//
//	"24. okt 10:00 – 31. okt 12:00"  (date to date)
//	"10:15 – 12:00"                  (time only, same day)
var (
	dateTimeRangeRegex = regexp.MustCompile(`(\d{1,2}\. \w+) (\d{1,2}:\d{2}) – (\d{1,2}\. \w+) (\d{1,2}:\d{2})`)
	timeRangeRegex     = regexp.MustCompile(`(\d{1,2}:\d{2}) – (\d{1,2}:\d{2})`)
)

// ParseDateRange parses a planner schedule span.
//
// The date-to-date grammar has no fallback: if either endpoint fails to
// parse there is no sane guess, so the whole range comes back nil. The
// time-only grammar anchors both clocks to today; a computed end before
// the start means the span crosses midnight and the end is pushed
// forward one day.
func ParseDateRange(text string) DateRange {
	// the date grammar must be tried first, a date-to-date span also
	// matches the bare time grammar
	if m := dateTimeRangeRegex.FindStringSubmatch(text); m != nil {
		from := parseDayMonthClock(m[1], m[2])
		to := parseDayMonthClock(m[3], m[4])
		if from == nil || to == nil {
			return DateRange{}
		}
		return DateRange{From: from, To: to}
	}

	if m := timeRangeRegex.FindStringSubmatch(text); m != nil {
		now := timezone.Now()
		from := parseClockAt(now, m[1])
		to := parseClockAt(now, m[2])
		if from == nil || to == nil {
			return DateRange{}
		}
		if to.Before(*from) {
			next := to.AddDate(0, 0, 1)
			to = &next
		}
		return DateRange{From: from, To: to}
	}

	return DateRange{}
}

// the portal abbreviates months in either the English or the Danish
// locale depending on account settings; both are matched by prefix
// against the full names
var referenceMonths = [12][2]string{
	{"january", "januar"},
	{"february", "februar"},
	{"march", "marts"},
	{"april", "april"},
	{"may", "maj"},
	{"june", "juni"},
	{"july", "juli"},
	{"august", "august"},
	{"september", "september"},
	{"october", "oktober"},
	{"november", "november"},
	{"december", "december"},
}

func parseMonth(text string) time.Month {
	text = strings.ToLower(strings.TrimSuffix(text, "."))
	if text == "" {
		return -1
	}
	for i, names := range referenceMonths {
		if strings.HasPrefix(names[0], text) || strings.HasPrefix(names[1], text) {
			return time.January + time.Month(i)
		}
	}
	return -1
}

// parseDayMonthClock parses an endpoint like ("24. okt", "10:00") into
// a timestamp in the current year.
func parseDayMonthClock(dayMonth, clock string) *time.Time {
	fields := strings.SplitN(dayMonth, ". ", 2)
	if len(fields) != 2 {
		return nil
	}
	day, err := strconv.Atoi(fields[0])
	if err != nil || day < 1 || day > 31 {
		return nil
	}
	month := parseMonth(fields[1])
	if month < time.January {
		return nil
	}
	hour, minute, ok := parseClock(clock)
	if !ok {
		return nil
	}

	t := time.Date(timezone.Now().Year(), month, day, hour, minute, 0, 0, timezone.Location)
	return &t
}

// parseClockAt anchors a bare clock to the given day.
func parseClockAt(day time.Time, clock string) *time.Time {
	hour, minute, ok := parseClock(clock)
	if !ok {
		return nil
	}
	t := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, timezone.Location)
	return &t
}

func parseClock(clock string) (hour, minute int, ok bool) {
	fields := strings.SplitN(clock, ":", 2)
	if len(fields) != 2 {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(fields[0])
	if err != nil || hour > 23 {
		return 0, 0, false
	}
	minute, err = strconv.Atoi(fields[1])
	if err != nil || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}
