package domain

import "time"

// TimeWindow is the interval a schedule occupies a driver and vehicle.
// A nil End means the window is open-ended: it extends until the schedule is
// completed or cancelled.
type TimeWindow struct {
	Start time.Time
	End   *time.Time
}

// NewTimeWindow returns a closed window [start, end].
func NewTimeWindow(start, end time.Time) TimeWindow {
	return TimeWindow{Start: start, End: &end}
}

// OpenEnded reports whether the window has no known end.
func (w TimeWindow) OpenEnded() bool { return w.End == nil }

// Overlaps reports whether w and o share any instant.
// Boundaries are inclusive, so a window ending at 10:00 collides with one
// starting at 10:00. Open ends compare as +infinity, which keeps the test
// symmetric.
func (w TimeWindow) Overlaps(o TimeWindow) bool {
	return !afterEnd(w.Start, o.End) && !afterEnd(o.Start, w.End)
}

// afterEnd reports whether t is strictly after end. A nil end is never passed.
func afterEnd(t time.Time, end *time.Time) bool {
	return end != nil && t.After(*end)
}

// AggregateWindow derives a schedule's window from its destinations:
// Start is the earliest TripStartTime, End is the latest defined
// TripApproxArrivalTime (nil when no destination supplies one).
// The second return value is false when dests is empty.
func AggregateWindow(dests []Destination) (TimeWindow, bool) {
	if len(dests) == 0 {
		return TimeWindow{}, false
	}

	w := TimeWindow{Start: dests[0].TripStartTime}
	for _, d := range dests {
		if d.TripStartTime.Before(w.Start) {
			w.Start = d.TripStartTime
		}
		if d.TripApproxArrivalTime == nil {
			continue
		}
		if w.End == nil || d.TripApproxArrivalTime.After(*w.End) {
			end := *d.TripApproxArrivalTime
			w.End = &end
		}
	}
	return w, true
}
