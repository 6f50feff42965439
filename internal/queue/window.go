package queue

import "time"

// Window is the daily range of local hours during which messages may go out.
// StartHour is inclusive, EndHour exclusive. A window whose start is after its
// end wraps past midnight; equal hours mean always open.
type Window struct {
	StartHour int
	EndHour   int
	Location  *time.Location
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if w.StartHour == w.EndHour {
		return true
	}
	loc := w.Location
	if loc == nil {
		loc = time.Local
	}
	h := t.In(loc).Hour()
	if w.StartHour < w.EndHour {
		return h >= w.StartHour && h < w.EndHour
	}
	return h >= w.StartHour || h < w.EndHour
}
