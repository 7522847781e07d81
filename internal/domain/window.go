package domain

import "time"

// WindowPadding is the fixed margin applied to both ends of an event's
// time interval before matching product files against it.
const WindowPadding = 15 * time.Minute

// Window is a closed time interval.
type Window struct {
	Start time.Time
	End   time.Time
}

// PadWindow expands [start, end] symmetrically by WindowPadding.
func PadWindow(start, end time.Time) Window {
	return Window{
		Start: start.Add(-WindowPadding),
		End:   end.Add(WindowPadding),
	}
}

// Contains reports whether t lies in the window, boundaries inclusive.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}
