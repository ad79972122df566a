package storage

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout is how timestamps are stored and exported. It is fixed width,
// so textual order in the database equals chronological order.
const TimeLayout = "2006-01-02 15:04:05.000000"

// naiveLayouts carry no zone.
var naiveLayouts = []string{
	TimeLayout,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999999",
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime accepts the stored layout and the layouts older databases and
// hand-edited files use. Values without a zone are taken as UTC.
func ParseTime(s string) (time.Time, error) {
	if t, ok := parseNaive(s, time.UTC); ok {
		return t, nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// parseNaive reads s as wall clock time in loc. It reports false when s is
// not in a zoneless layout.
func parseNaive(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// sqlTime scans DATETIME columns. The driver hands these over either as
// time.Time or as text depending on what was stored.
type sqlTime struct {
	Time  time.Time
	Valid bool
}

func (t *sqlTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into timestamp", src)
	}
}

func (t *sqlTime) parse(s string) error {
	parsed, err := ParseTime(s)
	if err != nil {
		return err
	}
	t.Time, t.Valid = parsed, true
	return nil
}
