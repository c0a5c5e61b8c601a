package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// AccountingMonth tags which monthly cycle a record belongs to, independent
// of its timestamp. Its text form is YYYY-MM.
type AccountingMonth struct {
	Year  int
	Month time.Month
}

var monthNames = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

func NewAccountingMonth(year int, month time.Month) AccountingMonth {
	return AccountingMonth{Year: year, Month: month}
}

// MonthOf returns the accounting month containing t.
func MonthOf(t time.Time) AccountingMonth {
	return AccountingMonth{Year: t.Year(), Month: t.Month()}
}

// ParseAccountingMonth parses the YYYY-MM form.
func ParseAccountingMonth(s string) (AccountingMonth, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return AccountingMonth{}, fmt.Errorf("%w: invalid accounting month %q", ErrValidation, s)
	}
	return MonthOf(t), nil
}

func (m AccountingMonth) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

func (m AccountingMonth) IsZero() bool {
	return m.Year == 0 && m.Month == 0
}

func (m AccountingMonth) Validate() error {
	if m.Month < time.January || m.Month > time.December {
		return ErrInvalidMonth
	}
	if m.Year < 1 {
		return fmt.Errorf("%w: invalid year %d", ErrValidation, m.Year)
	}
	return nil
}

// FirstDay returns midnight UTC on the first day of the month.
func (m AccountingMonth) FirstDay() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// AddMonths moves the month by n (negative allowed).
func (m AccountingMonth) AddMonths(n int) AccountingMonth {
	return MonthOf(m.FirstDay().AddDate(0, n, 0))
}

func (m AccountingMonth) Next() AccountingMonth {
	return m.AddMonths(1)
}

func (m AccountingMonth) Before(o AccountingMonth) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Month < o.Month
}

// MonthsUntil returns how many calendar months separate m from o.
func (m AccountingMonth) MonthsUntil(o AccountingMonth) int {
	return (o.Year-m.Year)*12 + int(o.Month) - int(m.Month)
}

func (m AccountingMonth) Contains(t time.Time) bool {
	return t.Year() == m.Year && t.Month() == m.Month
}

// Name returns the Spanish month name, lowercase ("septiembre").
func (m AccountingMonth) Name() string {
	if m.Month < time.January || m.Month > time.December {
		return ""
	}
	return monthNames[m.Month-1]
}

// Title returns the capitalised display form ("Septiembre 2025").
func (m AccountingMonth) Title() string {
	name := m.Name()
	if name == "" {
		return ""
	}
	return string(name[0]-'a'+'A') + name[1:] + fmt.Sprintf(" %d", m.Year)
}

// DayIn returns the given day of this month at the clock time of ref,
// clamped to the month's last day.
func (m AccountingMonth) DayIn(day int, ref time.Time) time.Time {
	last := time.Date(m.Year, m.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(m.Year, m.Month, day, ref.Hour(), ref.Minute(), ref.Second(), ref.Nanosecond(), ref.Location())
}

// AddMonthsClamped shifts t by n calendar months keeping the day of month,
// clamped to the target month's last day (Jan 31 + 1 -> Feb 28/29).
func AddMonthsClamped(t time.Time, n int) time.Time {
	return MonthOf(t).AddMonths(n).DayIn(t.Day(), t)
}

func (m AccountingMonth) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *AccountingMonth) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAccountingMonth(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
