package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DestinationTarget is what a destination points at: either an existing trip
// request (LinkedDestination) or ad-hoc trip details (InlineDestination).
// The interface is sealed; only the two types below implement it.
type DestinationTarget interface {
	isDestinationTarget()
}

// LinkedDestination ties a stop to a pre-existing TripRequest.
type LinkedDestination struct {
	RequestID uuid.UUID
}

// InlineDestination carries its own trip details instead of a request.
type InlineDestination struct {
	Label      string
	PurposeID  *uuid.UUID
	JobCardID  string
	NoOfPeople int
	MapLink    string
}

func (LinkedDestination) isDestinationTarget() {}
func (InlineDestination) isDestinationTarget() {}

// Destination is one stop within a schedule. Slice order is visiting order.
type Destination struct {
	Target                DestinationTarget
	TripStartTime         time.Time
	TripApproxArrivalTime *time.Time     // nil when the arrival is unknown
	TripPurposeTime       *time.Duration // optional hint for time spent on site
}

// NewLinkedDestination builds a destination backed by a trip request.
func NewLinkedDestination(requestID uuid.UUID, start time.Time, arrival *time.Time) Destination {
	return Destination{
		Target:                LinkedDestination{RequestID: requestID},
		TripStartTime:         start,
		TripApproxArrivalTime: arrival,
	}
}

// NewInlineDestination builds a destination carrying ad-hoc trip details.
func NewInlineDestination(inline InlineDestination, start time.Time, arrival *time.Time) Destination {
	return Destination{
		Target:                inline,
		TripStartTime:         start,
		TripApproxArrivalTime: arrival,
	}
}

// RequestID returns the linked trip request id, if any.
func (d Destination) RequestID() (uuid.UUID, bool) {
	if l, ok := d.Target.(LinkedDestination); ok {
		return l.RequestID, true
	}
	return uuid.UUID{}, false
}

// Inline returns the inline trip details, if any.
func (d Destination) Inline() (InlineDestination, bool) {
	i, ok := d.Target.(InlineDestination)
	return i, ok
}

// Validate enforces the per-entry rules shared by create and update.
func (d Destination) Validate() error {
	if d.TripStartTime.IsZero() {
		return fmt.Errorf("%w: trip_start_time is required", ErrInvalidArgument)
	}
	if d.TripApproxArrivalTime != nil && d.TripApproxArrivalTime.Before(d.TripStartTime) {
		return fmt.Errorf("%w: trip_approx_arrival_time must not be before trip_start_time", ErrInvalidArgument)
	}
	switch t := d.Target.(type) {
	case LinkedDestination:
		if t.RequestID == uuid.Nil {
			return fmt.Errorf("%w: request_id must not be empty", ErrInvalidArgument)
		}
	case InlineDestination:
		if strings.TrimSpace(t.Label) == "" {
			return fmt.Errorf("%w: destination_label is required for inline destinations", ErrInvalidArgument)
		}
		if t.NoOfPeople < 0 {
			return fmt.Errorf("%w: no_of_people must not be negative", ErrInvalidArgument)
		}
	default:
		return fmt.Errorf("%w: destination needs either request_id or inline trip details", ErrInvalidArgument)
	}
	return nil
}

// RequestIDs returns the linked request ids of dests in visiting order.
func RequestIDs(dests []Destination) []uuid.UUID {
	var ids []uuid.UUID
	for _, d := range dests {
		if id, ok := d.RequestID(); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// destinationJSON is the flat wire and storage shape of a Destination.
type destinationJSON struct {
	RequestID             *uuid.UUID `json:"request_id,omitempty"`
	DestinationLabel      string     `json:"destination_label,omitempty"`
	PurposeID             *uuid.UUID `json:"purpose_id,omitempty"`
	JobCardID             string     `json:"job_card_id,omitempty"`
	NoOfPeople            int        `json:"no_of_people,omitempty"`
	MapLink               string     `json:"map_link,omitempty"`
	TripStartTime         time.Time  `json:"trip_start_time"`
	TripApproxArrivalTime *time.Time `json:"trip_approx_arrival_time,omitempty"`
	TripPurposeMinutes    *int64     `json:"trip_purpose_minutes,omitempty"`
}

func (j destinationJSON) hasInline() bool {
	return j.DestinationLabel != "" || j.PurposeID != nil || j.JobCardID != "" ||
		j.NoOfPeople != 0 || j.MapLink != ""
}

// MarshalJSON flattens the variant into a single object.
func (d Destination) MarshalJSON() ([]byte, error) {
	out := destinationJSON{
		TripStartTime:         d.TripStartTime,
		TripApproxArrivalTime: d.TripApproxArrivalTime,
	}
	if d.TripPurposeTime != nil {
		m := int64(*d.TripPurposeTime / time.Minute)
		out.TripPurposeMinutes = &m
	}
	switch t := d.Target.(type) {
	case LinkedDestination:
		id := t.RequestID
		out.RequestID = &id
	case InlineDestination:
		out.DestinationLabel = t.Label
		out.PurposeID = t.PurposeID
		out.JobCardID = t.JobCardID
		out.NoOfPeople = t.NoOfPeople
		out.MapLink = t.MapLink
	}
	return json.Marshal(out)
}

// UnmarshalJSON picks the variant from the flat object. An entry carrying
// both request_id and inline fields is rejected with ErrInvalidArgument.
func (d *Destination) UnmarshalJSON(b []byte) error {
	var in destinationJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	if in.RequestID != nil && in.hasInline() {
		return fmt.Errorf("%w: destination must set either request_id or inline fields, not both", ErrInvalidArgument)
	}

	*d = Destination{
		TripStartTime:         in.TripStartTime,
		TripApproxArrivalTime: in.TripApproxArrivalTime,
	}
	if in.TripPurposeMinutes != nil {
		dur := time.Duration(*in.TripPurposeMinutes) * time.Minute
		d.TripPurposeTime = &dur
	}
	switch {
	case in.RequestID != nil:
		d.Target = LinkedDestination{RequestID: *in.RequestID}
	case in.hasInline():
		d.Target = InlineDestination{
			Label:      in.DestinationLabel,
			PurposeID:  in.PurposeID,
			JobCardID:  in.JobCardID,
			NoOfPeople: in.NoOfPeople,
			MapLink:    in.MapLink,
		}
	}
	return nil
}
