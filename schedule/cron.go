package schedule

import (
	"strconv"
	"strings"
	"time"

	"github.com/pagewatch/pagewatch/errors"
)

// cronField is one parsed field: either any-value or an allowed-value set.
type cronField struct {
	any    bool
	values map[int]bool
}

// Cron is a parsed five-field cron expression:
// minute hour day-of-month month day-of-week (0-6, Sunday=0).
// Supported syntax per field: *, */N, literals, ranges a-b, and
// comma-separated lists of those.
type Cron struct {
	minute cronField
	hour   cronField
	dom    cronField
	month  cronField
	dow    cronField
}

var fieldBounds = [5]struct{ lo, hi int }{
	{0, 59}, // minute
	{0, 23}, // hour
	{1, 31}, // day of month
	{1, 12}, // month
	{0, 6},  // day of week
}

// ParseCron parses a cron expression or fails with an invalid-config error.
func ParseCron(expr string) (*Cron, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "cron expression %q must have 5 fields, got %d", expr, len(parts))
	}

	var fields [5]cronField
	for i, part := range parts {
		f, err := parseField(part, fieldBounds[i].lo, fieldBounds[i].hi)
		if err != nil {
			return nil, errors.Wrapf(err, "cron expression %q field %d", expr, i+1)
		}
		fields[i] = f
	}

	return &Cron{
		minute: fields[0],
		hour:   fields[1],
		dom:    fields[2],
		month:  fields[3],
		dow:    fields[4],
	}, nil
}

// Matches reports whether the instant's minute satisfies the expression.
func (c *Cron) Matches(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dom.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dow.matches(int(t.Weekday()))
}

func (f cronField) matches(v int) bool {
	return f.any || f.values[v]
}

func parseField(part string, lo, hi int) (cronField, error) {
	if part == "*" {
		return cronField{any: true}, nil
	}

	values := make(map[int]bool)
	for _, item := range strings.Split(part, ",") {
		if err := parseItem(item, lo, hi, values); err != nil {
			return cronField{}, err
		}
	}
	return cronField{values: values}, nil
}

func parseItem(item string, lo, hi int, values map[int]bool) error {
	// */N and a-b/N step forms.
	if base, stepStr, ok := strings.Cut(item, "/"); ok {
		step, err := strconv.Atoi(stepStr)
		if err != nil || step <= 0 {
			return errors.Wrapf(errors.ErrInvalidConfig, "invalid step %q", item)
		}
		from, to := lo, hi
		if base != "*" {
			from, to, err = parseRange(base, lo, hi)
			if err != nil {
				return err
			}
		}
		for v := from; v <= to; v += step {
			values[v] = true
		}
		return nil
	}

	if strings.Contains(item, "-") {
		from, to, err := parseRange(item, lo, hi)
		if err != nil {
			return err
		}
		for v := from; v <= to; v++ {
			values[v] = true
		}
		return nil
	}

	v, err := strconv.Atoi(item)
	if err != nil || v < lo || v > hi {
		return errors.Wrapf(errors.ErrInvalidConfig, "invalid value %q (want %d-%d)", item, lo, hi)
	}
	values[v] = true
	return nil
}

func parseRange(s string, lo, hi int) (int, int, error) {
	fromStr, toStr, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, errors.Wrapf(errors.ErrInvalidConfig, "invalid range %q", s)
	}
	from, err1 := strconv.Atoi(fromStr)
	to, err2 := strconv.Atoi(toStr)
	if err1 != nil || err2 != nil || from < lo || to > hi || from > to {
		return 0, 0, errors.Wrapf(errors.ErrInvalidConfig, "invalid range %q (want %d-%d)", s, lo, hi)
	}
	return from, to, nil
}
