package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidYearMonth reports a value that does not parse as YYYY-MM.
var ErrInvalidYearMonth = errors.New("invalid year-month")

// YearMonth identifies a calendar month at year+month granularity. It is the
// unit spending-limit and monthly-balance goals are scoped to.
type YearMonth struct {
	Year  int
	Month time.Month
}

// YearMonthOf truncates an instant to its calendar month.
func YearMonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// ParseYearMonth parses the YYYY-MM form used on the wire and in filters.
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return YearMonth{}, fmt.Errorf("%w: %q", ErrInvalidYearMonth, s)
	}
	return YearMonthOf(t), nil
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

func (ym YearMonth) IsZero() bool {
	return ym.Year == 0 && ym.Month == 0
}

// Contains reports whether the instant falls inside this calendar month.
func (ym YearMonth) Contains(t time.Time) bool {
	return t.Year() == ym.Year && t.Month() == ym.Month
}

// LastDay returns the number of days in the month, accounting for leap years.
func (ym YearMonth) LastDay() int {
	return time.Date(ym.Year, ym.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
