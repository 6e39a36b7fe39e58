// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package newsletter

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CronSchedule is a parsed five-field cron expression. Each field is a
// bit set over its legal range, with explicit wildcard flags for the
// day fields because standard cron treats "every day" and "days 1-31"
// differently when combining day-of-month with day-of-week.
type CronSchedule struct {
	minute uint64 // bits 0-59
	hour   uint64 // bits 0-23
	dom    uint64 // bits 1-31
	month  uint64 // bits 1-12
	dow    uint64 // bits 0-6, Sunday = 0

	domStar bool
	dowStar bool
}

// ParseCron parses a five-field cron expression:
//
//	minute hour day-of-month month day-of-week
//
// Each field accepts *, single values, ranges (n-m), lists (a,b,c), and
// steps (*/n or n-m/s). Day-of-week runs Sunday to Saturday as 0-6,
// with 7 accepted as an alias for Sunday.
func ParseCron(expr string) (*CronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron expression needs 5 fields, got %d", len(fields))
	}

	var (
		s   CronSchedule
		err error
	)
	if s.minute, _, err = parseCronField(fields[0], 0, 59); err != nil {
		return nil, fmt.Errorf("minute field: %w", err)
	}
	if s.hour, _, err = parseCronField(fields[1], 0, 23); err != nil {
		return nil, fmt.Errorf("hour field: %w", err)
	}
	if s.dom, s.domStar, err = parseCronField(fields[2], 1, 31); err != nil {
		return nil, fmt.Errorf("day-of-month field: %w", err)
	}
	if s.month, _, err = parseCronField(fields[3], 1, 12); err != nil {
		return nil, fmt.Errorf("month field: %w", err)
	}
	dow, dowStar, err := parseCronField(fields[4], 0, 7)
	if err != nil {
		return nil, fmt.Errorf("day-of-week field: %w", err)
	}
	// Fold the Sunday alias 7 onto 0.
	if dow&(1<<7) != 0 {
		dow = (dow &^ (1 << 7)) | 1
	}
	s.dow = dow
	s.dowStar = dowStar

	return &s, nil
}

// Next returns the first time strictly after the given time that the
// schedule matches, truncated to the minute. If loc is nil the server's
// local time zone is used. The search gives up after four years and
// returns the zero time, which cannot happen for a parseable
// expression.
func (s *CronSchedule) Next(after time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t := after.In(loc).Add(time.Minute)
	t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc)

	limit := 4 * 366 * 24 * 60
	for i := 0; i < limit; i++ {
		if s.matches(t) {
			return t
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}
}

// matches reports whether the schedule fires at the given minute.
func (s *CronSchedule) matches(t time.Time) bool {
	if s.minute&(1<<uint(t.Minute())) == 0 {
		return false
	}
	if s.hour&(1<<uint(t.Hour())) == 0 {
		return false
	}
	if s.month&(1<<uint(t.Month())) == 0 {
		return false
	}

	domHit := s.dom&(1<<uint(t.Day())) != 0
	dowHit := s.dow&(1<<uint(t.Weekday())) != 0

	// Standard cron day semantics: when both day fields are restricted
	// the entry fires if either matches, otherwise only the restricted
	// field counts.
	switch {
	case s.domStar && s.dowStar:
		return true
	case s.domStar:
		return dowHit
	case s.dowStar:
		return domHit
	default:
		return domHit || dowHit
	}
}

// parseCronField parses one field into a bit set. The second return
// value reports whether the field was a bare wildcard.
func parseCronField(field string, minVal, maxVal int) (uint64, bool, error) {
	if field == "*" {
		return bitRange(minVal, maxVal, 1), true, nil
	}

	var bits uint64
	for _, part := range strings.Split(field, ",") {
		b, err := parseCronPart(part, minVal, maxVal)
		if err != nil {
			return 0, false, err
		}
		bits |= b
	}
	return bits, false, nil
}

// parseCronPart parses a single list element: a value, range, or step.
func parseCronPart(part string, minVal, maxVal int) (uint64, error) {
	step := 1
	if idx := strings.IndexByte(part, '/'); idx >= 0 {
		v, err := strconv.Atoi(part[idx+1:])
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("invalid step %q", part[idx+1:])
		}
		step = v
		part = part[:idx]
	}

	start, end := minVal, maxVal
	switch {
	case part == "*":
		// Range stays the full field.
	case strings.Contains(part, "-"):
		lo, hi, _ := strings.Cut(part, "-")
		var err error
		if start, err = strconv.Atoi(lo); err != nil {
			return 0, fmt.Errorf("invalid range start %q", lo)
		}
		if end, err = strconv.Atoi(hi); err != nil {
			return 0, fmt.Errorf("invalid range end %q", hi)
		}
		if start > end {
			return 0, fmt.Errorf("invalid range %q", part)
		}
	default:
		v, err := strconv.Atoi(part)
		if err != nil {
			return 0, fmt.Errorf("invalid value %q", part)
		}
		start = v
		if step == 1 {
			end = v
		}
		// A bare value with a step ("5/10") runs from the value to the
		// end of the field, matching Vixie cron.
	}

	if start < minVal || end > maxVal {
		return 0, fmt.Errorf("value out of range %d-%d in %q", minVal, maxVal, part)
	}
	return bitRange(start, end, step), nil
}

// bitRange sets every step-th bit from start to end inclusive.
func bitRange(start, end, step int) uint64 {
	var bits uint64
	for i := start; i <= end; i += step {
		bits |= 1 << uint(i)
	}
	return bits
}

// CalculateNextRun parses an expression and returns its next firing
// after the given time. An empty timezone means the server's local
// zone.
func CalculateNextRun(expr string, after time.Time, timezone string) (time.Time, error) {
	sched, err := ParseCron(expr)
	if err != nil {
		return time.Time{}, err
	}
	var loc *time.Location
	if timezone != "" {
		if loc, err = time.LoadLocation(timezone); err != nil {
			return time.Time{}, fmt.Errorf("invalid timezone %q: %w", timezone, err)
		}
	}
	return sched.Next(after, loc), nil
}
