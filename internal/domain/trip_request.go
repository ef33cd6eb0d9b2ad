package domain

import (
	"time"

	"github.com/google/uuid"
)

// TripRequestStatus is the lifecycle state of a TripRequest.
type TripRequestStatus string

const (
	TripRequestPending   TripRequestStatus = "pending"
	TripRequestScheduled TripRequestStatus = "scheduled"
	TripRequestCancelled TripRequestStatus = "cancelled"
)

// TripRequest is a standalone request for transportation. It is owned by the
// trip request component; the scheduler only reads it and moves its link.
// LinkedTripID is non-nil exactly when one active schedule claims it.
type TripRequest struct {
	ID               uuid.UUID
	Status           TripRequestStatus
	LinkedTripID     *uuid.UUID
	RequestedBy      uuid.UUID
	DestinationLabel string
	PurposeID        *uuid.UUID
	JobCardID        string
	NoOfPeople       int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Driver is the subset of the driver record the scheduler depends on.
// UserID is the account that receives the driver's notifications.
type Driver struct {
	ID     uuid.UUID
	Name   string
	UserID *uuid.UUID
	Active bool
}

// Vehicle is the subset of the vehicle record the scheduler depends on.
type Vehicle struct {
	ID                 uuid.UUID
	RegistrationNumber string
	Active             bool
}

// TripPurpose names why a trip is taken; used in notification summaries.
type TripPurpose struct {
	ID   uuid.UUID
	Name string
}
