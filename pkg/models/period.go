package models

import (
	"fmt"
	"time"
)

// Period is an accounting month.
type Period struct {
	Year  int `json:"year" db:"year"`
	Month int `json:"month" db:"month"`
}

func NewPeriod(year, month int) Period {
	return Period{Year: year, Month: month}
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

// PeriodFromKey is the inverse of Period.Key.
func PeriodFromKey(key int) Period {
	return Period{Year: key / 12, Month: key%12 + 1}
}

// ParsePeriod parses "YYYY-MM".
func ParsePeriod(s string) (Period, error) {
	var p Period
	if _, err := fmt.Sscanf(s, "%4d-%2d", &p.Year, &p.Month); err != nil {
		return Period{}, fmt.Errorf("%w: %q is not YYYY-MM", ErrInvalidPeriod, s)
	}
	if !p.Valid() {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return p, nil
}

// Key is a linear month index used for range scans and ordering.
func (p Period) Key() int {
	return p.Year*12 + p.Month - 1
}

func (p Period) Valid() bool {
	return p.Year > 0 && p.Month >= 1 && p.Month <= 12
}

func (p Period) AddMonths(n int) Period {
	return PeriodFromKey(p.Key() + n)
}

func (p Period) Prev() Period {
	return p.AddMonths(-1)
}

func (p Period) Before(other Period) bool {
	return p.Key() < other.Key()
}

// Start is midnight UTC on the first day of the month.
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End is midnight UTC on the last day of the month.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, -1)
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// PeriodState is the lifecycle of a close run.
type PeriodState string

const (
	PeriodOpen    PeriodState = "open"
	PeriodClosing PeriodState = "closing"
	PeriodClosed  PeriodState = "closed"
	PeriodFailed  PeriodState = "failed"
)

// Lock domains frozen by a close.
const (
	DomainSales      = "ventas"
	DomainExpenses   = "gastos"
	DomainPayroll    = "nomina"
	DomainProduction = "produccion"
)

func DefaultLockDomains() []string {
	return []string{DomainSales, DomainExpenses, DomainPayroll, DomainProduction}
}

// FormatDate renders t as the YYYY-MM-DD form used by operational tables.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}
