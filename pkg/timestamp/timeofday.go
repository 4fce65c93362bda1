package timestamp

import (
	"strings"
	"time"
)

// clockLayouts are tried in order; the first successful parse wins.
var clockLayouts = []string{
	"3:04 PM",
	"15:04",
	"15:04:05",
	"3:04:05 PM",
}

// TimeOfDay parses a free-form clock-time string (12-hour with meridiem,
// 24-hour, with or without seconds) and anchors it to the calendar date of
// the given report timestamp. Empty input, a zero anchor or an unrecognized
// format yields (time.Time{}, false); no error ever propagates.
func TimeOfDay(s string, anchor time.Time) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || anchor.IsZero() {
		return time.Time{}, false
	}
	// Meridiem comparison is case-insensitive ("2:30 pm" == "2:30 PM").
	upper := strings.ToUpper(s)
	for _, layout := range clockLayouts {
		t, err := time.Parse(layout, upper)
		if err != nil {
			continue
		}
		combined := time.Date(
			anchor.Year(), anchor.Month(), anchor.Day(),
			t.Hour(), t.Minute(), t.Second(), 0,
			anchor.Location(),
		)
		return combined, true
	}
	return time.Time{}, false
}
