package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/trip-scheduler/internal/domain"
)

// TripRequestRepo is the scheduler's view of the trip request component:
// it reads requests and moves their link, nothing else.
type TripRequestRepo interface {
	// GetByID retrieves a trip request by id.
	// Returns domain.ErrNotFound if no request with that ID exists.
	GetByID(ctx context.Context, id uuid.UUID) (domain.TripRequest, error)

	// UpdateLink sets the request's status and linked schedule in one write.
	// Pass a nil linkedTripID to clear the link.
	// Returns domain.ErrNotFound if no request with that ID exists.
	UpdateLink(ctx context.Context, id uuid.UUID, status domain.TripRequestStatus, linkedTripID *uuid.UUID) (domain.TripRequest, error)
}

type pgTripRequestRepo struct {
	db db
}

// NewTripRequestRepo constructs a TripRequestRepo backed by the provided db connection.
func NewTripRequestRepo(db db) TripRequestRepo {
	return &pgTripRequestRepo{db: db}
}

const tripRequestColumns = `
	id, status, linked_trip_id, requested_by, destination_label, purpose_id,
	job_card_id, no_of_people, created_at, updated_at`

func (r *pgTripRequestRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.TripRequest, error) {
	q := `SELECT ` + tripRequestColumns + ` FROM trip_requests WHERE id = @id`

	result, err := scanTripRequest(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.TripRequest{}, fmt.Errorf("repo.TripRequestRepo.GetByID: %w", err)
	}
	return result, nil
}

func (r *pgTripRequestRepo) UpdateLink(ctx context.Context, id uuid.UUID, status domain.TripRequestStatus, linkedTripID *uuid.UUID) (domain.TripRequest, error) {
	q := `
		UPDATE trip_requests
		SET status         = @status,
		    linked_trip_id = @linked_trip_id,
		    updated_at     = now()
		WHERE id = @id
		RETURNING ` + tripRequestColumns

	args := pgx.NamedArgs{
		"id":             id,
		"status":         string(status),
		"linked_trip_id": linkedTripID,
	}

	result, err := scanTripRequest(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.TripRequest{}, fmt.Errorf("repo.TripRequestRepo.UpdateLink: %w", err)
	}
	return result, nil
}

func scanTripRequest(s scanner) (domain.TripRequest, error) {
	var (
		t                 domain.TripRequest
		id, requestedBy   pgtype.UUID
		linked, purposeID pgtype.UUID
		status            string
	)
	err := s.Scan(&id, &status, &linked, &requestedBy, &t.DestinationLabel, &purposeID,
		&t.JobCardID, &t.NoOfPeople, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return domain.TripRequest{}, mapPgError(err)
	}
	t.ID = uuid.UUID(id.Bytes)
	t.Status = domain.TripRequestStatus(status)
	t.LinkedTripID = uuidPtr(linked)
	t.RequestedBy = uuid.UUID(requestedBy.Bytes)
	t.PurposeID = uuidPtr(purposeID)
	return t, nil
}
