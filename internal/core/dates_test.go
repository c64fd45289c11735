package core

import (
	"errors"
	"testing"
)

func TestPeriodValidate(t *testing.T) {
	if err := (Period{Month: 3, Year: 2025}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Period{Month: 13, Year: 2025}).Validate(); !errors.Is(err, ErrInvalidMonth) {
		t.Fatalf("got %v, want ErrInvalidMonth", err)
	}
	if err := (Period{Month: 3, Year: 0}).Validate(); !errors.Is(err, ErrInvalidYear) {
		t.Fatalf("got %v, want ErrInvalidYear", err)
	}
}

func TestAddMonthsClamped(t *testing.T) {
	cases := []struct {
		in   Date
		n    int
		want Date
	}{
		{NewDate(2025, 1, 15), 1, NewDate(2025, 2, 15)},
		{NewDate(2025, 1, 31), 1, NewDate(2025, 2, 28)}, // clamp, not overflow into March
		{NewDate(2024, 1, 31), 1, NewDate(2024, 2, 29)}, // leap year
		{NewDate(2025, 12, 10), 1, NewDate(2026, 1, 10)},
		{NewDate(2025, 3, 31), 1, NewDate(2025, 4, 30)},
		{NewDate(2025, 10, 31), 4, NewDate(2026, 2, 28)},
		{NewDate(2025, 5, 31), 0, NewDate(2025, 5, 31)},
	}
	for _, tc := range cases {
		if got := tc.in.AddMonthsClamped(tc.n); !got.Equal(tc.want) {
			t.Fatalf("%s + %d months: got %s, want %s", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestPeriodAddMonths(t *testing.T) {
	cases := []struct {
		in   Period
		n    int
		want Period
	}{
		{Period{Month: 3, Year: 2025}, 1, Period{Month: 4, Year: 2025}},
		{Period{Month: 12, Year: 2025}, 1, Period{Month: 1, Year: 2026}},
		{Period{Month: 11, Year: 2025}, 3, Period{Month: 2, Year: 2026}},
		{Period{Month: 6, Year: 2025}, 0, Period{Month: 6, Year: 2025}},
	}
	for _, tc := range cases {
		if got := tc.in.AddMonths(tc.n); got != tc.want {
			t.Fatalf("%v + %d: got %v, want %v", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestBillingPeriodFor(t *testing.T) {
	cases := []struct {
		purchase   Date
		closingDay int
		want       Period
	}{
		// Before the closing day: current cycle.
		{NewDate(2025, 3, 5), 10, Period{Month: 3, Year: 2025}},
		// On or after the closing day: next cycle.
		{NewDate(2025, 3, 10), 10, Period{Month: 4, Year: 2025}},
		{NewDate(2025, 3, 15), 10, Period{Month: 4, Year: 2025}},
		{NewDate(2025, 12, 28), 25, Period{Month: 1, Year: 2026}},
	}
	for _, tc := range cases {
		if got := BillingPeriodFor(tc.purchase, tc.closingDay); got != tc.want {
			t.Fatalf("purchase %s closing %d: got %v, want %v", tc.purchase, tc.closingDay, got, tc.want)
		}
	}
}

func TestPeriodDateOnClamps(t *testing.T) {
	p := Period{Month: 2, Year: 2025}
	if got := p.DateOn(31); !got.Equal(NewDate(2025, 2, 28)) {
		t.Fatalf("got %s", got)
	}
	if got := p.DateOn(10); !got.Equal(NewDate(2025, 2, 10)) {
		t.Fatalf("got %s", got)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-03-15")
	if err != nil || !d.Equal(NewDate(2025, 3, 15)) {
		t.Fatalf("got %s, err %v", d, err)
	}
	if _, err := ParseDate("15/03/2025"); err == nil {
		t.Fatalf("expected error for bad format")
	}
}
