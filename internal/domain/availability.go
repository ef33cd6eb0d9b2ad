package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// DefaultTripDuration is the assumed length of a trip when the caller gives
// no end time to an availability check. It is a product policy and can be
// overridden per query or through configuration.
const DefaultTripDuration = 4 * time.Hour

// AvailabilityQuery asks whether a driver and/or vehicle is free in a window.
type AvailabilityQuery struct {
	DriverID  *uuid.UUID
	VehicleID *uuid.UUID
	Start     time.Time

	// End of the requested window. When nil the window is Start+Duration,
	// unless OpenEnded is set, in which case it has no end.
	End       *time.Time
	Duration  time.Duration
	OpenEnded bool

	// ExcludeScheduleID drops the caller's own schedule from the candidates.
	ExcludeScheduleID *uuid.UUID
}

// Window resolves the requested window, applying fallback when neither End
// nor a per-query Duration is set.
func (q AvailabilityQuery) Window(fallback time.Duration) TimeWindow {
	if q.End != nil {
		return NewTimeWindow(q.Start, *q.End)
	}
	if q.OpenEnded {
		return TimeWindow{Start: q.Start}
	}
	d := q.Duration
	if d <= 0 {
		d = fallback
	}
	if d <= 0 {
		d = DefaultTripDuration
	}
	return NewTimeWindow(q.Start, q.Start.Add(d))
}

// Availability is the result of a conflict check. Conflicts are partitioned
// by the resource that caused them so callers can explain the rejection.
type Availability struct {
	Window           TimeWindow
	DriverConflicts  []Schedule // busy driver, different vehicle
	VehicleConflicts []Schedule // busy vehicle, different driver
	BothConflicts    []Schedule // same driver and same vehicle
}

// Available reports whether no conflicts were found.
func (a Availability) Available() bool {
	return len(a.DriverConflicts)+len(a.VehicleConflicts)+len(a.BothConflicts) == 0
}

// Conflicts returns every colliding schedule ordered by window start.
func (a Availability) Conflicts() []Schedule {
	all := make([]Schedule, 0, len(a.DriverConflicts)+len(a.VehicleConflicts)+len(a.BothConflicts))
	all = append(all, a.BothConflicts...)
	all = append(all, a.DriverConflicts...)
	all = append(all, a.VehicleConflicts...)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].WindowStart.Before(all[j].WindowStart)
	})
	return all
}

// Partition sorts candidates into an Availability for q, keeping only the
// ones whose window overlaps w and that are still blocking.
func Partition(q AvailabilityQuery, w TimeWindow, candidates []Schedule) Availability {
	a := Availability{Window: w}
	for _, s := range candidates {
		if !s.Active() || !s.Window().Overlaps(w) {
			continue
		}
		if q.ExcludeScheduleID != nil && s.ID == *q.ExcludeScheduleID {
			continue
		}
		driverHit := q.DriverID != nil && s.DriverID == *q.DriverID
		vehicleHit := q.VehicleID != nil && s.VehicleID == *q.VehicleID
		switch {
		case driverHit && vehicleHit:
			a.BothConflicts = append(a.BothConflicts, s)
		case driverHit:
			a.DriverConflicts = append(a.DriverConflicts, s)
		case vehicleHit:
			a.VehicleConflicts = append(a.VehicleConflicts, s)
		}
	}
	return a
}
