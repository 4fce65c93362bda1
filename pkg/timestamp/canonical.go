// Package timestamp normalizes heterogeneous timestamp representations into
// the single canonical, timezone-naive, second-precision string key used for
// report joins and deduplication, and parses the free-form clock-time and
// exam-date strings produced by the extraction oracle.
package timestamp

import (
	"fmt"
	"strings"
	"time"
)

// Layout is the canonical timestamp format. The exact string produced here is
// the join key for deduplication against the findings store: two timestamps
// that canonicalize to the same string are the same report.
const Layout = "2006-01-02 15:04:05"

// canonicalLayouts are tried in order when canonicalizing a string input. The
// canonical layout itself comes first so that Canonicalize is idempotent.
var canonicalLayouts = []string{
	Layout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05-07:00",
	"01/02/2006 15:04:05",
	"2006-01-02",
}

// Canonicalize converts any supported timestamp representation into the
// canonical string. Timezone-aware values are converted to UTC before the
// zone is dropped; sub-second precision is truncated. Unparseable input
// yields ("", false) rather than an error so callers can skip or flag bad
// rows individually within a batch.
func Canonicalize(value interface{}) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case time.Time:
		if v.IsZero() {
			return "", false
		}
		return format(v), true
	case *time.Time:
		if v == nil || v.IsZero() {
			return "", false
		}
		return format(*v), true
	case string:
		return canonicalizeString(v)
	case []byte:
		return canonicalizeString(string(v))
	case int64:
		return format(time.Unix(v, 0)), true
	case int:
		return format(time.Unix(int64(v), 0)), true
	case float64:
		return format(time.Unix(int64(v), 0)), true
	case fmt.Stringer:
		return canonicalizeString(v.String())
	default:
		return "", false
	}
}

// ParseCanonical parses a canonical timestamp string back into a concrete
// instant (UTC).
func ParseCanonical(s string) (time.Time, bool) {
	t, err := time.Parse(Layout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func canonicalizeString(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, layout := range canonicalLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return format(t), true
		}
	}
	return "", false
}

func format(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(Layout)
}
