package notify

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/pkordes/trip-scheduler/internal/domain"
)

// TripRequestLookup reads the trip requests behind linked destinations.
type TripRequestLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.TripRequest, error)
}

// FleetLookup reads the driver, vehicle, and purpose records used in messages.
type FleetLookup interface {
	GetDriver(ctx context.Context, id uuid.UUID) (domain.Driver, error)
	GetVehicle(ctx context.Context, id uuid.UUID) (domain.Vehicle, error)
	GetPurpose(ctx context.Context, id uuid.UUID) (domain.TripPurpose, error)
}

// Stop is a destination resolved to display values.
type Stop struct {
	Label       string
	PurposeName string
	RequestedBy *uuid.UUID // set for linked destinations
}

// Describer resolves destinations to labels and purposes, reading either the
// linked trip request or the inline fields. Lookup failures degrade to empty
// values and are logged; describing never fails.
type Describer struct {
	requests TripRequestLookup
	fleet    FleetLookup
	log      *slog.Logger
}

// NewDescriber constructs a Describer.
func NewDescriber(requests TripRequestLookup, fleet FleetLookup, log *slog.Logger) *Describer {
	return &Describer{requests: requests, fleet: fleet, log: log}
}

// Stops resolves every destination in visiting order.
func (d *Describer) Stops(ctx context.Context, dests []domain.Destination) []Stop {
	purposes := map[uuid.UUID]string{}
	stops := make([]Stop, 0, len(dests))
	for _, dest := range dests {
		var (
			st        Stop
			purposeID *uuid.UUID
		)
		switch t := dest.Target.(type) {
		case domain.LinkedDestination:
			tr, err := d.requests.GetByID(ctx, t.RequestID)
			if err != nil {
				d.log.WarnContext(ctx, "describe destination: trip request lookup failed",
					"request_id", t.RequestID, "error", err)
				break
			}
			st.Label = tr.DestinationLabel
			requestedBy := tr.RequestedBy
			st.RequestedBy = &requestedBy
			purposeID = tr.PurposeID
		case domain.InlineDestination:
			st.Label = t.Label
			purposeID = t.PurposeID
		}
		if purposeID != nil {
			st.PurposeName = d.purposeName(ctx, *purposeID, purposes)
		}
		stops = append(stops, st)
	}
	return stops
}

// Requestors resolves trip request ids to the users who raised them, in
// order. Requests that cannot be read are logged and skipped.
func (d *Describer) Requestors(ctx context.Context, requestIDs []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(requestIDs))
	for _, id := range requestIDs {
		tr, err := d.requests.GetByID(ctx, id)
		if err != nil {
			d.log.WarnContext(ctx, "resolve requestor: trip request lookup failed",
				"request_id", id, "error", err)
			continue
		}
		out = append(out, tr.RequestedBy)
	}
	return out
}

func (d *Describer) purposeName(ctx context.Context, id uuid.UUID, cache map[uuid.UUID]string) string {
	if name, ok := cache[id]; ok {
		return name
	}
	p, err := d.fleet.GetPurpose(ctx, id)
	if err != nil {
		d.log.WarnContext(ctx, "describe destination: purpose lookup failed", "purpose_id", id, "error", err)
	}
	cache[id] = p.Name
	return p.Name
}

// Summary renders one "• {label} - {purpose}" line per stop.
func Summary(stops []Stop) string {
	lines := make([]string, len(stops))
	for i, st := range stops {
		lines[i] = "• " + st.Label + " - " + st.PurposeName
	}
	return strings.Join(lines, "\n")
}

// Labels returns the stop labels joined with ", ".
func Labels(stops []Stop) string {
	labels := make([]string, 0, len(stops))
	for _, st := range stops {
		if st.Label != "" {
			labels = append(labels, st.Label)
		}
	}
	return strings.Join(labels, ", ")
}
