package timestamp

import (
	"strings"
	"time"
)

// examDateLayouts are tried in order. Day-first layouts come after their
// month-first twins, so an ambiguous date like 03/05/2024 resolves as
// month/day and 13/05/2024 falls through to day/month.
var examDateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"01-02-2006",
	"02-01-2006",
}

// examDateClock fixes the time-of-day for AI-asserted exam dates: the oracle
// asserts only the calendar date, so the canonical timestamp is pinned to
// midday.
var examDateClock = [3]int{12, 0, 0}

// ExamDate parses an oracle-asserted exam date string and returns it as a
// canonical timestamp anchored at 12:00:00 on that date. Absent or
// unparseable input yields ("", false).
func ExamDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, layout := range examDateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		midday := time.Date(
			t.Year(), t.Month(), t.Day(),
			examDateClock[0], examDateClock[1], examDateClock[2], 0,
			time.UTC,
		)
		return midday.Format(Layout), true
	}
	return "", false
}
