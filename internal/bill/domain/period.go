package domain

import (
	"fmt"
	"strings"
	"time"
)

// Period is a billing month.
type Period struct {
	Month time.Month
	Year  int
}

// ParsePeriod accepts full or three-letter English month names in any case
// and a four digit year.
func ParsePeriod(month string, year int) (Period, error) {
	m, ok := parseMonth(month)
	if !ok {
		return Period{}, ErrInvalidMonth
	}
	if year < 1000 || year > 9999 {
		return Period{}, ErrInvalidYear
	}
	return Period{Month: m, Year: year}, nil
}

// PeriodOf returns the period containing t in loc.
func PeriodOf(t time.Time, loc *time.Location) Period {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return Period{Month: local.Month(), Year: local.Year()}
}

func (p Period) MonthName() string { return p.Month.String() }

func (p Period) String() string {
	return fmt.Sprintf("%s %d", p.Month, p.Year)
}

func parseMonth(value string) (time.Month, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	if len(value) < 3 {
		return 0, false
	}
	for m := time.January; m <= time.December; m++ {
		name := strings.ToLower(m.String())
		if value == name || value == name[:3] {
			return m, true
		}
	}
	return 0, false
}
