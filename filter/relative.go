package filter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	jnow "github.com/jinzhu/now"
	"github.com/xhit/go-str2duration/v2"
)

// DateRange is a half-open interval [Start, End).
type DateRange struct {
	Start time.Time
	End   time.Time
}

// relativeAbbreviations are operator-map keys that stand for a relative token.
var relativeAbbreviations = map[string]bool{
	"last":      true,
	"next":      true,
	"this":      true,
	"today":     true,
	"yesterday": true,
	"tomorrow":  true,
}

var durationUnits = map[string]string{
	"minute": "m",
	"min":    "m",
	"hour":   "h",
	"day":    "d",
	"week":   "w",
}

// ResolveRelative turns a relative token into an absolute range around now.
// Supported tokens:
//
//	today | yesterday | tomorrow
//	this|last|next day|week|month|quarter|year
//	last|next N minutes|hours|days|weeks|months|years
//	last|next <compact duration>, e.g. "36h" or "1w2d"
//
// Rolling windows end (last) or start (next) at now. Calendar windows align to
// the start of the unit; weeks start on Monday.
func ResolveRelative(token string, now time.Time) (DateRange, error) {
	words := strings.Fields(strings.ToLower(token))
	cal := &jnow.Config{WeekStartDay: time.Monday, TimeLocation: now.Location()}
	day := cal.With(now).BeginningOfDay()

	switch len(words) {
	case 1:
		switch words[0] {
		case "today":
			return DateRange{Start: day, End: day.AddDate(0, 0, 1)}, nil
		case "yesterday":
			return DateRange{Start: day.AddDate(0, 0, -1), End: day}, nil
		case "tomorrow":
			return DateRange{Start: day.AddDate(0, 0, 1), End: day.AddDate(0, 0, 2)}, nil
		}
	case 2:
		if r, ok := calendarRange(cal.With(now), words[0], words[1]); ok {
			return r, nil
		}
		if words[0] == "last" || words[0] == "next" {
			d, err := str2duration.ParseDuration(words[1])
			if err == nil && d > 0 {
				return rollingRange(now, words[0], func(t time.Time, sign int) time.Time {
					return t.Add(time.Duration(sign) * d)
				}), nil
			}
		}
	case 3:
		if words[0] == "last" || words[0] == "next" {
			n, err := strconv.Atoi(words[1])
			if err == nil && n > 0 {
				if shift, ok := unitShift(words[2], n); ok {
					return rollingRange(now, words[0], shift), nil
				}
			}
		}
	}
	return DateRange{}, errUnknownRelative
}

func calendarRange(n *jnow.Now, which, unit string) (DateRange, bool) {
	var offset int
	switch which {
	case "this":
		offset = 0
	case "last":
		offset = -1
	case "next":
		offset = 1
	default:
		return DateRange{}, false
	}

	var start time.Time
	var step func(t time.Time, k int) time.Time
	switch unit {
	case "day":
		start = n.BeginningOfDay()
		step = func(t time.Time, k int) time.Time { return t.AddDate(0, 0, k) }
	case "week":
		start = n.BeginningOfWeek()
		step = func(t time.Time, k int) time.Time { return t.AddDate(0, 0, 7*k) }
	case "month":
		start = n.BeginningOfMonth()
		step = func(t time.Time, k int) time.Time { return t.AddDate(0, k, 0) }
	case "quarter":
		start = n.BeginningOfQuarter()
		step = func(t time.Time, k int) time.Time { return t.AddDate(0, 3*k, 0) }
	case "year":
		start = n.BeginningOfYear()
		step = func(t time.Time, k int) time.Time { return t.AddDate(k, 0, 0) }
	default:
		return DateRange{}, false
	}
	s := step(start, offset)
	return DateRange{Start: s, End: step(s, 1)}, true
}

func unitShift(unit string, n int) (func(t time.Time, sign int) time.Time, bool) {
	unit = strings.TrimSuffix(unit, "s")
	switch unit {
	case "month":
		return func(t time.Time, sign int) time.Time { return t.AddDate(0, sign*n, 0) }, true
	case "year":
		return func(t time.Time, sign int) time.Time { return t.AddDate(sign*n, 0, 0) }, true
	}
	abbrev, ok := durationUnits[unit]
	if !ok {
		return nil, false
	}
	d, err := str2duration.ParseDuration(strconv.Itoa(n) + abbrev)
	if err != nil {
		return nil, false
	}
	return func(t time.Time, sign int) time.Time { return t.Add(time.Duration(sign) * d) }, true
}

func rollingRange(now time.Time, direction string, shift func(t time.Time, sign int) time.Time) DateRange {
	if direction == "last" {
		return DateRange{Start: shift(now, -1), End: now}
	}
	return DateRange{Start: now, End: shift(now, 1)}
}

// expandRelative rewrites an abbreviated form such as {"last": 30} or
// {"today": true} into a relative token.
func expandRelative(key string, value any) (string, error) {
	switch key {
	case "today", "yesterday", "tomorrow":
		if b, ok := value.(bool); !ok || !b {
			return "", fmt.Errorf("%s expects true", key)
		}
		return key, nil
	case "this":
		s, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("this expects a unit such as \"week\"")
		}
		return "this " + s, nil
	default:
		if n, ok := toInt(value); ok {
			return fmt.Sprintf("%s %d days", key, n), nil
		}
		s, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("%s expects a day count or a duration such as \"30 days\"", key)
		}
		return key + " " + s, nil
	}
}
