// Package calendar converts between the store's datetime-string format and
// the integer hour-index used to address the time axis of the matrix.
package calendar

import (
	"errors"
	"fmt"
	"time"
)

// Layout is the fixed wall-clock format every datetime the store accepts
// must be parsed with.
const Layout = "2006-01-02 15:04:05"

// ErrBeforeEpoch is returned when a datetime resolves to a negative
// hour-index.
var ErrBeforeEpoch = errors.New("calendar: datetime is before the store epoch")

// Calendar converts between datetime strings and hour-indices relative to
// one fixed epoch. Every datetime the store accepts, and every datetime it
// emits, goes through the same Calendar instance, and the streaming-mode
// ingestion producers compute hour-indices through ToIndexFromParts.
// Bulk-year producers compute their day-of-year and hour themselves (in
// UTC, see dayOfYearAndHour in internal/ingest) and use a Calendar only for
// the run's starting hour-index.
//
// The reference implementation parses datetimes with the process-local
// timezone via strptime/mktime, which makes the resulting hour-index
// non-portable across hosts with different TZ settings. This
// implementation pins that choice explicitly: Calendar carries a
// *time.Location and every parse uses it. The zone is not stored in the
// store file; the store façade builds every Calendar with time.UTC, so the
// result does not depend on the TZ setting of the host that opens it.
type Calendar struct {
	epoch time.Time
	loc   *time.Location
}

// New builds a Calendar whose epoch is epochStr parsed in loc. epochStr
// must already match Layout.
func New(epochStr string, loc *time.Location) (*Calendar, error) {
	if loc == nil {
		loc = time.UTC
	}
	epoch, err := time.ParseInLocation(Layout, epochStr, loc)
	if err != nil {
		return nil, fmt.Errorf("calendar: invalid epoch %q: %w", epochStr, err)
	}
	return &Calendar{epoch: epoch, loc: loc}, nil
}

// Epoch returns the epoch string in Layout form, the value stored under
// the population_data object's start_datetime attribute.
func (c *Calendar) Epoch() string { return c.epoch.Format(Layout) }

// Location returns the timezone this Calendar interprets datetimes in.
func (c *Calendar) Location() *time.Location { return c.loc }

// ToIndex parses s and returns the hour-index relative to the epoch.
// Fractional minutes are truncated toward the enclosing hour, matching the
// reference implementation's float-division-then-truncate arithmetic.
// Indices that would be strictly negative are rejected with ErrBeforeEpoch.
func (c *Calendar) ToIndex(s string) (int, error) {
	t, err := time.ParseInLocation(Layout, s, c.loc)
	if err != nil {
		return 0, fmt.Errorf("calendar: invalid datetime %q: %w", s, err)
	}
	return c.timeToIndex(t)
}

// ToIndexFromParts computes the hour-index for a date/time pair already
// split into calendar components, as the CSV ingestion path does for every
// record without building and re-parsing a datetime string. date is
// YYYYMMDD, hm is HHMM; minutes are dropped (truncated) exactly as a
// string-formatted ToIndex call would.
func (c *Calendar) ToIndexFromParts(date, hm uint32) (int, error) {
	year := int(date / 10000)
	month := int((date / 100) % 100)
	day := int(date % 100)
	hour := int(hm / 100)

	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 {
		return 0, fmt.Errorf("calendar: invalid date/time components %08d %04d", date, hm)
	}

	t := time.Date(year, time.Month(month), day, hour, 0, 0, 0, c.loc)
	return c.timeToIndex(t)
}

func (c *Calendar) timeToIndex(t time.Time) (int, error) {
	// The reference truncates float seconds/3600.0, not a rounded integer
	// division; the Unix-second difference is exact for these
	// wall-clock-only inputs, and Go's integer division truncates toward
	// zero the same way.
	delta := t.Unix() - c.epoch.Unix()
	idx := int(delta / 3600)
	if idx < 0 {
		return 0, ErrBeforeEpoch
	}
	return idx, nil
}

// FromIndex renders the datetime string for hour-index idx.
func (c *Calendar) FromIndex(idx int) string {
	t := c.epoch.Add(time.Duration(idx) * time.Hour)
	return t.In(c.loc).Format(Layout)
}
