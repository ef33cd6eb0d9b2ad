package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/pkordes/trip-scheduler/internal/domain"
)

// Template selects the wording of a schedule-change notification.
type Template string

const (
	TemplateScheduled   Template = "scheduled"
	TemplateRescheduled Template = "rescheduled"
	TemplateCancelled   Template = "cancelled"
	TemplateStarted     Template = "started"
	TemplateCompleted   Template = "completed"
)

// EventType is the preference key users toggle for this template.
func (t Template) EventType() domain.EventType {
	switch t {
	case TemplateRescheduled:
		return domain.EventTripRescheduled
	case TemplateCancelled:
		return domain.EventTripCancelled
	case TemplateStarted:
		return domain.EventTripStarted
	case TemplateCompleted:
		return domain.EventTripCompleted
	}
	return domain.EventTripScheduled
}

// Audience is a group of recipients resolved for one notification.
type Audience string

const (
	AudienceDriver     Audience = "driver"
	AudienceRequestor  Audience = "requestor"
	AudienceOperations Audience = "operations"
)

// Text is the title and body pattern for one template and audience.
// Patterns may use {summary}, {start}, {end}, and {vehicle}.
type Text struct {
	Title string `koanf:"title"`
	Body  string `koanf:"body"`
}

// Templates maps every template and audience to its Text.
type Templates map[Template]map[Audience]Text

// DefaultTemplates returns the built-in wording.
func DefaultTemplates() Templates {
	return Templates{
		TemplateScheduled: {
			AudienceDriver:     {Title: "New trip assigned", Body: "You are driving {vehicle} from {start} to {end}:\n{summary}"},
			AudienceRequestor:  {Title: "Trip scheduled", Body: "Your trip is scheduled from {start} to {end}:\n{summary}"},
			AudienceOperations: {Title: "Trip scheduled", Body: "A trip was scheduled from {start} to {end}:\n{summary}"},
		},
		TemplateRescheduled: {
			AudienceDriver:     {Title: "Trip re-scheduled", Body: "Your trip on {vehicle} is now {start} to {end}:\n{summary}"},
			AudienceRequestor:  {Title: "Trip re-scheduled", Body: "Your trip was re-scheduled to {start} - {end}:\n{summary}"},
			AudienceOperations: {Title: "Trip re-scheduled", Body: "A trip was re-scheduled to {start} - {end}:\n{summary}"},
		},
		TemplateCancelled: {
			AudienceDriver:     {Title: "Trip cancelled", Body: "Your trip from {start} was cancelled:\n{summary}"},
			AudienceRequestor:  {Title: "Trip cancelled", Body: "Your scheduled trip from {start} was cancelled:\n{summary}"},
			AudienceOperations: {Title: "Trip cancelled", Body: "A trip from {start} was cancelled:\n{summary}"},
		},
		TemplateStarted: {
			AudienceRequestor:  {Title: "Trip started", Body: "Your trip has started:\n{summary}"},
			AudienceOperations: {Title: "Trip started", Body: "{vehicle} started its trip:\n{summary}"},
		},
		TemplateCompleted: {
			AudienceRequestor:  {Title: "Trip completed", Body: "Your trip is complete:\n{summary}"},
			AudienceOperations: {Title: "Trip completed", Body: "{vehicle} completed its trip:\n{summary}"},
		},
	}
}

// LoadTemplates reads template overrides from a YAML file shaped as
// template -> audience -> {title, body} and merges them over the defaults.
func LoadTemplates(path string) (Templates, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("notify.LoadTemplates: %w", err)
	}

	var raw map[string]map[string]Text
	if err := k.Unmarshal("", &raw); err != nil {
		return nil, fmt.Errorf("notify.LoadTemplates: %w", err)
	}

	out := DefaultTemplates()
	for tName, byAudience := range raw {
		t := Template(tName)
		if _, ok := out[t]; !ok {
			return nil, fmt.Errorf("notify.LoadTemplates: unknown template %q", tName)
		}
		for aName, text := range byAudience {
			a := Audience(aName)
			switch a {
			case AudienceDriver, AudienceRequestor, AudienceOperations:
			default:
				return nil, fmt.Errorf("notify.LoadTemplates: unknown audience %q", aName)
			}
			out[t][a] = text
		}
	}
	return out, nil
}

// timeLayout is how window boundaries appear in message bodies.
const timeLayout = "Mon 02 Jan 15:04"

// render fills a Text for one schedule. A missing end renders as "open".
func (x Text) render(s domain.Schedule, vehicle, summary string) Text {
	end := "open"
	if s.WindowEnd != nil {
		end = s.WindowEnd.Format(timeLayout)
	}
	r := strings.NewReplacer(
		"{summary}", summary,
		"{start}", s.WindowStart.Format(timeLayout),
		"{end}", end,
		"{vehicle}", vehicle,
	)
	return Text{Title: r.Replace(x.Title), Body: r.Replace(x.Body)}
}

// FormatWindowTime is the shared layout for human-readable window times.
func FormatWindowTime(t time.Time) string { return t.Format(timeLayout) }
