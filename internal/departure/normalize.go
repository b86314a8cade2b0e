// Package departure turns provider departure times into comparable instants
// and orders route lists by them.
//
// When the provider supplies both an epoch value and display text, the epoch
// value is trusted. Text such as "12:05 AM" carries no date, so anchoring it
// to the current day places a just-after-midnight departure up to a day
// early; the epoch value has no such ambiguity.
package departure

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bbernstein/busstops/backend-go/internal/models"
)

var ErrUnparsable = fmt.Errorf("%w: departure time", models.ErrParseFailure)

// Normalize returns the departure instant for a provider time. A positive
// epoch wins; otherwise raw is parsed and anchored to now's calendar day in
// loc. The bool is false when neither source yields an instant.
func Normalize(raw string, epoch *int64, now time.Time, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = now.Location()
	}

	if epoch != nil && *epoch > 0 {
		return time.Unix(*epoch, 0).In(loc), true
	}

	hour, minute, err := ParseClock(raw)
	if err != nil {
		return time.Time{}, false
	}

	day := now.In(loc)
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc), true
}

// ParseClock parses "H:MM" or "HH:MM", optionally followed by AM or PM,
// into a 24-hour hour and minute.
func ParseClock(text string) (hour, minute int, err error) {
	// Providers put a narrow no-break space (U+202F) before the meridiem
	// marker; strings.Fields treats it as whitespace.
	fields := strings.Fields(text)
	if len(fields) == 0 || len(fields) > 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrUnparsable, text)
	}

	clock := strings.SplitN(fields[0], ":", 2)
	if len(clock) != 2 || len(clock[0]) < 1 || len(clock[0]) > 2 || len(clock[1]) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrUnparsable, text)
	}

	hour, err = parseDigits(clock[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrUnparsable, text)
	}
	minute, err = parseDigits(clock[1])
	if err != nil || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrUnparsable, text)
	}

	if len(fields) == 1 {
		if hour > 23 {
			return 0, 0, fmt.Errorf("%w: %q", ErrUnparsable, text)
		}
		return hour, minute, nil
	}

	if hour < 1 || hour > 12 {
		return 0, 0, fmt.Errorf("%w: %q", ErrUnparsable, text)
	}

	switch strings.ToUpper(fields[1]) {
	case "PM":
		if hour != 12 {
			hour += 12
		}
	case "AM":
		if hour == 12 {
			hour = 0
		}
	default:
		return 0, 0, fmt.Errorf("%w: %q", ErrUnparsable, text)
	}

	return hour, minute, nil
}

func parseDigits(s string) (int, error) {
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.Atoi(s)
}

// Location resolves an IANA zone name, falling back when it is empty or
// unknown.
func Location(name string, fallback *time.Location) *time.Location {
	if name == "" {
		return fallback
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fallback
	}
	return loc
}

// SortRoutes orders routes ascending by departure instant. Routes without an
// instant go last and keep their relative order.
func SortRoutes(routes []models.RouteDeparture) {
	sort.SliceStable(routes, func(i, j int) bool {
		a, b := routes[i], routes[j]
		switch {
		case a.Parsed() && b.Parsed():
			return a.DepartureInstant.Before(*b.DepartureInstant)
		default:
			return a.Parsed() && !b.Parsed()
		}
	})
}

// NextAfter returns the first route in sorted routes whose instant is
// strictly after now, or nil.
func NextAfter(routes []models.RouteDeparture, now time.Time) *models.RouteDeparture {
	for _, r := range routes {
		if r.Parsed() && r.DepartureInstant.After(now) {
			next := r
			return &next
		}
	}
	return nil
}
