// Package notify broadcasts human-readable schedule-change summaries to the
// assigned driver, the requestors behind linked trip requests, and the
// operations roles. Notifications are advisory: every failure is logged and
// counted, never returned to the operation that triggered it.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pkordes/trip-scheduler/internal/domain"
	"github.com/pkordes/trip-scheduler/internal/metrics"
	"github.com/pkordes/trip-scheduler/internal/push"
)

// DefaultOperationsRoles receive every schedule change.
var DefaultOperationsRoles = []string{"scheduler", "admin", "super-admin"}

// Event is one schedule change to announce.
type Event struct {
	Schedule domain.Schedule
	Template Template
	// ActorID is the user who made the change; they are not notified.
	ActorID *uuid.UUID
	// Released lists trip requests the change unlinked from the schedule.
	// Their requestors are notified even though the stops no longer show them.
	Released []uuid.UUID
}

// Preferences resolves an audience to the device tokens of users who have
// the event type enabled.
type Preferences interface {
	EnabledRecipients(ctx context.Context, q domain.RecipientQuery, event domain.EventType) ([]string, error)
}

// Handler processes one Event synchronously.
type Handler interface {
	Notify(ctx context.Context, ev Event) error
}

// Fanout resolves audiences for an Event and pushes one message per audience.
type Fanout struct {
	describer *Describer
	fleet     FleetLookup
	prefs     Preferences
	sender    push.Sender
	templates Templates
	opsRoles  []string
	log       *slog.Logger
}

// FanoutConfig carries the optional knobs of a Fanout.
type FanoutConfig struct {
	Templates       Templates // nil uses DefaultTemplates
	OperationsRoles []string  // nil uses DefaultOperationsRoles
}

// NewFanout constructs a Fanout.
func NewFanout(requests TripRequestLookup, fleet FleetLookup, prefs Preferences, sender push.Sender, cfg FanoutConfig, log *slog.Logger) *Fanout {
	if cfg.Templates == nil {
		cfg.Templates = DefaultTemplates()
	}
	if cfg.OperationsRoles == nil {
		cfg.OperationsRoles = DefaultOperationsRoles
	}
	return &Fanout{
		describer: NewDescriber(requests, fleet, log),
		fleet:     fleet,
		prefs:     prefs,
		sender:    sender,
		templates: cfg.Templates,
		opsRoles:  cfg.OperationsRoles,
		log:       log,
	}
}

var _ Handler = (*Fanout)(nil)

// audience is a resolved recipient group.
type audience struct {
	name  Audience
	query domain.RecipientQuery
}

// Notify builds the summary, resolves the three audiences, and sends to each.
// Audiences are handled independently: one failing does not stop the others.
// The returned error joins every failure and is meant for logging only.
func (f *Fanout) Notify(ctx context.Context, ev Event) error {
	s := ev.Schedule
	stops := f.describer.Stops(ctx, s.Destinations)
	summary := Summary(stops)

	var vehicle string
	if v, err := f.fleet.GetVehicle(ctx, s.VehicleID); err == nil {
		vehicle = v.RegistrationNumber
	}

	var errs []error
	audiences, err := f.audiences(ctx, s, stops, ev.Released, ev.ActorID)
	if err != nil {
		errs = append(errs, err)
	}

	sent := map[string]bool{}
	for _, a := range audiences {
		text, ok := f.templates[ev.Template][a.name]
		if !ok {
			continue
		}
		if err := f.sendTo(ctx, ev, a, text.render(s, vehicle, summary), sent); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// audiences resolves driver, requestors, and operations. Requestors cover the
// linked stops plus any released trip requests. A failed driver lookup only
// drops the driver audience.
func (f *Fanout) audiences(ctx context.Context, s domain.Schedule, stops []Stop, released []uuid.UUID, actor *uuid.UUID) ([]audience, error) {
	var (
		out []audience
		err error
	)

	d, derr := f.fleet.GetDriver(ctx, s.DriverID)
	switch {
	case derr != nil:
		err = fmt.Errorf("notify.Fanout: resolve driver %s: %w", s.DriverID, derr)
	case d.UserID != nil:
		out = append(out, audience{AudienceDriver, domain.RecipientQuery{UserIDs: []uuid.UUID{*d.UserID}, Exclude: actor}})
	}

	seen := map[uuid.UUID]bool{}
	var requestors []uuid.UUID
	for _, st := range stops {
		if st.RequestedBy == nil || seen[*st.RequestedBy] {
			continue
		}
		seen[*st.RequestedBy] = true
		requestors = append(requestors, *st.RequestedBy)
	}
	for _, id := range f.describer.Requestors(ctx, released) {
		if !seen[id] {
			seen[id] = true
			requestors = append(requestors, id)
		}
	}
	if len(requestors) > 0 {
		out = append(out, audience{AudienceRequestor, domain.RecipientQuery{UserIDs: requestors, Exclude: actor}})
	}

	if len(f.opsRoles) > 0 {
		out = append(out, audience{AudienceOperations, domain.RecipientQuery{Roles: f.opsRoles, Exclude: actor}})
	}
	return out, err
}

// sendTo pushes text to one audience. Tokens already used by an earlier
// audience are skipped so a user holding two roles gets a single message.
func (f *Fanout) sendTo(ctx context.Context, ev Event, a audience, text Text, sent map[string]bool) error {
	tokens, err := f.prefs.EnabledRecipients(ctx, a.query, ev.Template.EventType())
	if err != nil {
		return fmt.Errorf("notify.Fanout: resolve %s recipients: %w", a.name, err)
	}

	fresh := tokens[:0:0]
	for _, t := range tokens {
		if !sent[t] {
			sent[t] = true
			fresh = append(fresh, t)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	res, err := f.sender.Send(ctx, push.Message{
		Tokens: fresh,
		Title:  text.Title,
		Body:   text.Body,
		Data: map[string]string{
			"schedule_id": ev.Schedule.ID.String(),
			"event":       string(ev.Template.EventType()),
		},
	})
	metrics.NotificationsSent.WithLabelValues(string(ev.Template), string(a.name), "success").Add(float64(res.SuccessCount))
	metrics.NotificationsSent.WithLabelValues(string(ev.Template), string(a.name), "failure").Add(float64(res.FailureCount))
	if err != nil {
		return fmt.Errorf("notify.Fanout: send to %s: %w", a.name, err)
	}

	f.log.DebugContext(ctx, "notification sent",
		"schedule_id", ev.Schedule.ID,
		"template", ev.Template,
		"audience", a.name,
		"success", res.SuccessCount,
		"failure", res.FailureCount,
	)
	return nil
}
