package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pkordes/trip-scheduler/internal/domain"
	"github.com/pkordes/trip-scheduler/internal/repo"
)

// linkMode selects how a trip request's link moves.
type linkMode int

const (
	// linkClaim links the request to a schedule, re-checking its status.
	linkClaim linkMode = iota
	// linkRelease unlinks the request without re-checking its status, so an
	// update can always give a request back even if it would block a new link.
	linkRelease
)

// checkLinkable reports whether tr may be claimed by scheduleID.
// A request already linked to scheduleID is accepted so re-saving the same
// destination list is a no-op.
func checkLinkable(tr domain.TripRequest, scheduleID *uuid.UUID) error {
	switch tr.Status {
	case domain.TripRequestScheduled:
		if scheduleID != nil && tr.LinkedTripID != nil && *tr.LinkedTripID == *scheduleID {
			return nil
		}
		return fmt.Errorf("%w: trip request %s is already scheduled", domain.ErrConflict, tr.ID)
	case domain.TripRequestCancelled:
		return fmt.Errorf("%w: trip request %s is cancelled", domain.ErrInvalidState, tr.ID)
	}
	return nil
}

// validateClaims loads each request and checks it can be linked.
// Returns domain.ErrNotFound for a missing request.
func validateClaims(ctx context.Context, trips repo.TripRequestRepo, ids []uuid.UUID, scheduleID *uuid.UUID) error {
	for _, id := range ids {
		tr, err := trips.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("trip request %s: %w", id, err)
		}
		if err := checkLinkable(tr, scheduleID); err != nil {
			return err
		}
	}
	return nil
}

// applyLink moves one request's link.
//
// linkClaim sets status=scheduled and linked_trip_id=scheduleID after the
// status check. linkRelease sets status=pending and clears the link with no
// status check, except that a request the caller cancelled stays cancelled,
// and a request claimed by some other schedule is left alone.
func applyLink(ctx context.Context, trips repo.TripRequestRepo, requestID, scheduleID uuid.UUID, mode linkMode) error {
	tr, err := trips.GetByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("trip request %s: %w", requestID, err)
	}

	switch mode {
	case linkClaim:
		if err := checkLinkable(tr, &scheduleID); err != nil {
			return err
		}
		_, err = trips.UpdateLink(ctx, requestID, domain.TripRequestScheduled, &scheduleID)

	case linkRelease:
		if tr.LinkedTripID != nil && *tr.LinkedTripID != scheduleID {
			return nil
		}
		status := domain.TripRequestPending
		if tr.Status == domain.TripRequestCancelled {
			status = domain.TripRequestCancelled
		}
		_, err = trips.UpdateLink(ctx, requestID, status, nil)
	}
	if err != nil {
		return fmt.Errorf("trip request %s: %w", requestID, err)
	}
	return nil
}

// diffRequestIDs splits the request ids of two destination lists into the
// ids only in before (to release) and the ids only in after (to claim).
func diffRequestIDs(before, after []uuid.UUID) (removed, added []uuid.UUID) {
	inBefore := make(map[uuid.UUID]bool, len(before))
	for _, id := range before {
		inBefore[id] = true
	}
	inAfter := make(map[uuid.UUID]bool, len(after))
	for _, id := range after {
		inAfter[id] = true
		if !inBefore[id] {
			added = append(added, id)
		}
	}
	for _, id := range before {
		if !inAfter[id] {
			removed = append(removed, id)
		}
	}
	return removed, added
}
