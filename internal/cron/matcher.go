package cron

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/benmeehan/gpio-agent/internal/constants"
)

// ErrInvalidExpression is wrapped by every error Validate returns.
var ErrInvalidExpression = errors.New("invalid cron expression")

type fieldBounds struct {
	name     string
	min, max int
}

var fields = [5]fieldBounds{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// FieldMatches reports whether value satisfies a single cron field. A field
// is "*", a number, an inclusive a-b range that never wraps, or a comma list
// mixing both. Terms that are not numeric never match.
func FieldMatches(field string, value int) bool {
	if field == "*" {
		return true
	}
	for _, term := range strings.Split(field, ",") {
		lo, hi, ok := parseTerm(term)
		if ok && value >= lo && value <= hi {
			return true
		}
	}
	return false
}

// parseTerm returns the inclusive bounds of a number or a-b range.
func parseTerm(term string) (int, int, bool) {
	a, b, isRange := strings.Cut(term, "-")
	lo, err := strconv.Atoi(a)
	if err != nil || lo < 0 {
		return 0, 0, false
	}
	if !isRange {
		return lo, lo, true
	}
	hi, err := strconv.Atoi(b)
	if err != nil || hi < 0 {
		return 0, 0, false
	}
	return lo, hi, true
}

// ExpressionMatches reports whether all five fields (minute, hour,
// day-of-month, month, day-of-week with 0 = Sunday) match t. t is decomposed
// in its own location. Anything but exactly five fields never matches.
func ExpressionMatches(expr string, t time.Time) bool {
	parts := strings.Fields(expr)
	if len(parts) != len(fields) {
		return false
	}

	values := [5]int{t.Minute(), t.Hour(), t.Day(), int(t.Month()), int(t.Weekday())}
	for i, part := range parts {
		if !FieldMatches(part, values[i]) {
			return false
		}
	}
	return true
}

// Due reports whether a job with expression expr should fire at now. The
// minute must match, now must be at most window seconds past its top, and
// lastFired must not fall within window seconds before now. A lastFired in
// the future also blocks, so a wall clock stepped backwards cannot replay a
// trigger that already ran.
func Due(expr string, now time.Time, lastFired uint32, window uint32) bool {
	if !ExpressionMatches(expr, now) {
		return false
	}
	if uint32(now.Second()) > window {
		return false
	}
	epoch := uint64(uint32(now.Unix()))
	return epoch > uint64(lastFired)+uint64(window)
}

// Validate checks an expression before it is stored in a job slot: it must
// fit a record, have five fields, and use only "*", numbers, ranges and lists
// within each field's calendar bounds. Step syntax is rejected.
func Validate(expr string) error {
	if len(expr) > constants.MaxCronExpressionLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidExpression, constants.MaxCronExpressionLen)
	}

	parts := strings.Fields(expr)
	if len(parts) != len(fields) {
		return fmt.Errorf("%w: expected %d fields, got %d", ErrInvalidExpression, len(fields), len(parts))
	}

	for i, part := range parts {
		if err := validateField(part, fields[i]); err != nil {
			return fmt.Errorf("%w: %s field: %v", ErrInvalidExpression, fields[i].name, err)
		}
	}
	return nil
}

func validateField(field string, bounds fieldBounds) error {
	if field == "*" {
		return nil
	}
	for _, term := range strings.Split(field, ",") {
		if strings.Contains(term, "/") {
			return fmt.Errorf("step syntax %q is not supported", term)
		}
		lo, hi, ok := parseTerm(term)
		if !ok {
			return fmt.Errorf("invalid term %q", term)
		}
		if lo < bounds.min || hi > bounds.max {
			return fmt.Errorf("%q outside %d-%d", term, bounds.min, bounds.max)
		}
		if lo > hi {
			return fmt.Errorf("range %q is reversed", term)
		}
	}
	return nil
}
