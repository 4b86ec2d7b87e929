package cron

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule yields the next activation time after a given instant.
type Schedule interface {
	Next(after time.Time) time.Time
}

// Parse accepts "@every <duration>" or a five-field cron expression
// (minute hour day-of-month month day-of-week) evaluated in local time.
func Parse(line string) (Schedule, error) {
	line = strings.TrimSpace(line)
	if rest, ok := strings.CutPrefix(line, "@every "); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", rest, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("interval %s must be positive", d)
		}
		return every(d), nil
	}
	return parseExpr(line)
}

type every time.Duration

func (e every) Next(after time.Time) time.Time {
	return after.Add(time.Duration(e))
}

// bits holds one bit per allowed value of a cron field.
type bits uint64

func (b bits) has(v int) bool { return b&(1<<uint(v)) != 0 }

type expr struct {
	minute, hour, dom, month, dow bits
}

var fieldBounds = [5]struct {
	name     string
	min, max int
}{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

func parseExpr(line string) (*expr, error) {
	parts := strings.Fields(line)
	if len(parts) != len(fieldBounds) {
		return nil, fmt.Errorf("expected %d fields, got %d", len(fieldBounds), len(parts))
	}

	var set [5]bits
	for i, part := range parts {
		b, err := parseField(part, fieldBounds[i].min, fieldBounds[i].max)
		if err != nil {
			return nil, fmt.Errorf("%s field: %w", fieldBounds[i].name, err)
		}
		set[i] = b
	}
	return &expr{minute: set[0], hour: set[1], dom: set[2], month: set[3], dow: set[4]}, nil
}

// parseField handles lists of "*", "n", "a-b", each optionally with "/step".
func parseField(field string, min, max int) (bits, error) {
	var out bits
	for _, term := range strings.Split(field, ",") {
		rng, stepStr, hasStep := strings.Cut(term, "/")
		step := 1
		if hasStep {
			n, err := strconv.Atoi(stepStr)
			if err != nil || n <= 0 {
				return 0, fmt.Errorf("invalid step in %q", term)
			}
			step = n
		}

		lo, hi := min, max
		switch {
		case rng == "*":
		case strings.Contains(rng, "-"):
			a, b, _ := strings.Cut(rng, "-")
			var errA, errB error
			lo, errA = strconv.Atoi(a)
			hi, errB = strconv.Atoi(b)
			if errA != nil || errB != nil {
				return 0, fmt.Errorf("invalid range %q", rng)
			}
		default:
			v, err := strconv.Atoi(rng)
			if err != nil {
				return 0, fmt.Errorf("invalid value %q", rng)
			}
			lo, hi = v, v
			if hasStep {
				hi = max
			}
		}
		if lo < min || hi > max || lo > hi {
			return 0, fmt.Errorf("%q out of bounds [%d,%d]", term, min, max)
		}
		for v := lo; v <= hi; v += step {
			out |= 1 << uint(v)
		}
	}
	if out == 0 {
		return 0, errors.New("empty field")
	}
	return out, nil
}

// maxSearch bounds Next for expressions that match rarely, e.g. Feb 29.
const maxSearch = 5 * 366 * 24 * time.Hour

// Next returns the first whole minute after after that matches every field.
func (e *expr) Next(after time.Time) time.Time {
	t := after.Truncate(time.Minute).Add(time.Minute)
	limit := t.Add(maxSearch)
	for t.Before(limit) {
		switch {
		case !e.month.has(int(t.Month())):
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
		case !e.dom.has(t.Day()) || !e.dow.has(int(t.Weekday())):
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
		case !e.hour.has(t.Hour()):
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, t.Location())
		case !e.minute.has(t.Minute()):
			t = t.Add(time.Minute)
		default:
			return t
		}
	}
	return limit
}
