// Package cycle computes the 16th-to-15th duty cycle enclosing a date.
package cycle

import (
	"fmt"
	"iter"
	"time"

	"github.com/okian/dutyqueue/internal/domain/model"
)

// StartDay is the day of month on which every cycle begins. The cycle ends
// on StartDay-1 of the following month.
const StartDay = 16

// Window is an inclusive range of calendar days [Start, End].
type Window struct {
	Start model.Date `json:"start"`
	End   model.Date `json:"end"`
}

// For returns the cycle containing ref.
func For(ref model.Date) Window {
	year, month := ref.Year, ref.Month
	if ref.Day < StartDay {
		month--
	}
	start := model.NewDate(year, month, StartDay)
	end := model.NewDate(start.Year, start.Month+1, StartDay-1)
	return Window{Start: start, End: end}
}

// ForTime truncates t to its calendar day in loc and returns its cycle.
func ForTime(t time.Time, loc *time.Location) Window {
	return For(model.DateIn(t, loc))
}

// Days yields every date of the window in calendar order. Each call to the
// returned sequence starts over from Start.
func (w Window) Days() iter.Seq[model.Date] {
	return func(yield func(model.Date) bool) {
		n := w.Len()
		for i := 0; i < n; i++ {
			if !yield(w.Start.AddDays(i)) {
				return
			}
		}
	}
}

// DayList materialises Days into a slice.
func (w Window) DayList() []model.Date {
	out := make([]model.Date, 0, w.Len())
	for d := range w.Days() {
		out = append(out, d)
	}
	return out
}

// Len returns the number of days in the window, both ends included.
func (w Window) Len() int {
	if w.End.Before(w.Start) {
		return 0
	}
	return w.Start.DaysUntil(w.End) + 1
}

// Contains reports whether d falls inside the window.
func (w Window) Contains(d model.Date) bool {
	return !d.Before(w.Start) && !d.After(w.End)
}

// Shift returns the cycle n cycles away from w (negative n moves back).
func (w Window) Shift(n int) Window {
	return For(model.NewDate(w.Start.Year, w.Start.Month+time.Month(n), StartDay))
}

// Next returns the following cycle.
func (w Window) Next() Window { return w.Shift(1) }

// Prev returns the preceding cycle.
func (w Window) Prev() Window { return w.Shift(-1) }

// Label renders the window as "DD/MM a DD/MM".
func (w Window) Label() string {
	return fmt.Sprintf("%02d/%02d a %02d/%02d", w.Start.Day, int(w.Start.Month), w.End.Day, int(w.End.Month))
}

// String renders the window as "start..end".
func (w Window) String() string {
	return w.Start.String() + ".." + w.End.String()
}
