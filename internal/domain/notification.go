package domain

import "github.com/google/uuid"

// EventType identifies a schedule change for notification preferences.
// Users enable or disable each event type independently.
type EventType string

const (
	EventTripScheduled   EventType = "trip_scheduled"
	EventTripRescheduled EventType = "trip_rescheduled"
	EventTripCancelled   EventType = "trip_cancelled"
	EventTripStarted     EventType = "trip_started"
	EventTripCompleted   EventType = "trip_completed"
)

// RecipientQuery selects the users an audience resolves to: explicit user
// ids, everyone holding one of Roles, or both. Exclude removes the acting user.
type RecipientQuery struct {
	UserIDs []uuid.UUID
	Roles   []string
	Exclude *uuid.UUID
}

// Empty reports whether the query cannot match anyone.
func (q RecipientQuery) Empty() bool {
	return len(q.UserIDs) == 0 && len(q.Roles) == 0
}
