package clock

import "time"

// Clock supplies the current instant. The engine never calls time.Now directly
// so tests can walk the calendar without sleeping.
type Clock interface {
	Now() time.Time
}

type System struct{}

func (System) Now() time.Time {
	return time.Now()
}

// Fixed is a test clock that returns whatever it was set to.
type Fixed struct {
	Current time.Time
}

func (f *Fixed) Now() time.Time {
	return f.Current
}

// Advance moves the fixed clock forward.
func (f *Fixed) Advance(d time.Duration) {
	f.Current = f.Current.Add(d)
}

// NextDay moves the fixed clock to the same wall time on the following day.
func (f *Fixed) NextDay() {
	f.Current = f.Current.AddDate(0, 0, 1)
}

// SameDay reports whether a and b fall on the same calendar day.
// Comparison is by date components, not 24h rolling windows.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// IsYesterday reports whether prev falls on the calendar day before now.
func IsYesterday(prev, now time.Time) bool {
	return SameDay(prev, now.AddDate(0, 0, -1))
}

// DayStart returns midnight of t's calendar day, in t's location.
func DayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// WeekStart returns midnight of the Monday of t's week.
func WeekStart(t time.Time) time.Time {
	day := DayStart(t)
	wd := int(day.Weekday())
	if wd == 0 {
		wd = 7 // Sunday
	}
	return day.AddDate(0, 0, -(wd - 1))
}

// MonthStart returns midnight of the first day of t's month.
func MonthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}
