package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// Date is a calendar day with no time-of-day component. Stored and
// serialized as "2006-01-02" in UTC.
type Date struct {
	time.Time
}

func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a time to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: bad date %q", ErrValidation, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrValidation)
	}
	return nil
}

// Day returns the day of the month.
func (d Date) Day() int { return d.Time.Day() }

// Month returns the month as 1-12.
func (d Date) Month() int { return int(d.Time.Month()) }

// Year returns the year.
func (d Date) Year() int { return d.Time.Year() }

func (d Date) String() string { return d.Format("2006-01-02") }

func (d Date) Equal(o Date) bool { return d.Time.Equal(o.Time) }

// After reports whether d is strictly after o.
func (d Date) After(o Date) bool { return d.Time.After(o.Time) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: bad date", ErrValidation)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddMonthsClamped advances the date by n calendar months keeping the
// day of month, clamping to the last day when the target month is
// shorter. Naive time.AddDate would overflow Jan 31 into Mar 2/3; the
// ledger needs Jan 31 -> Feb 28 (or 29).
func (d Date) AddMonthsClamped(n int) Date {
	p := PeriodOf(d).AddMonths(n)
	return p.DateOn(d.Day())
}

// Period is one billing or reporting month.
type Period struct {
	Month int // 1-12
	Year  int
}

func PeriodOf(d Date) Period {
	return Period{Month: d.Month(), Year: d.Year()}
}

func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return ErrInvalidMonth
	}
	if p.Year < 1 {
		return ErrInvalidYear
	}
	return nil
}

func (p Period) AddMonths(n int) Period {
	m := p.Year*12 + (p.Month - 1) + n
	return Period{Month: m%12 + 1, Year: m / 12}
}

// DateOn places a day of month inside the period, clamped to the last
// day of the month.
func (p Period) DateOn(day int) Date {
	if last := DaysInMonth(p.Year, p.Month); day > last {
		day = last
	}
	return NewDate(p.Year, p.Month, day)
}

// Contains reports whether the date falls inside the period.
func (p Period) Contains(d Date) bool {
	return d.Year() == p.Year && d.Month() == p.Month
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// BillingPeriodFor resolves which invoice period a card purchase
// belongs to: a purchase made on or after the card's closing day rolls
// into the following cycle.
func BillingPeriodFor(purchase Date, closingDay int) Period {
	p := PeriodOf(purchase)
	if purchase.Day() >= closingDay {
		p = p.AddMonths(1)
	}
	return p
}
