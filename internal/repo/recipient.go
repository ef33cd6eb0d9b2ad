package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pkordes/trip-scheduler/internal/domain"
)

// RecipientRepo resolves notification audiences to device tokens, honouring
// each user's per-event preference. A missing preference row means enabled.
type RecipientRepo interface {
	EnabledRecipients(ctx context.Context, q domain.RecipientQuery, event domain.EventType) ([]string, error)
}

type pgRecipientRepo struct {
	db db
}

// NewRecipientRepo constructs a RecipientRepo backed by the provided db connection.
func NewRecipientRepo(db db) RecipientRepo {
	return &pgRecipientRepo{db: db}
}

func (r *pgRecipientRepo) EnabledRecipients(ctx context.Context, rq domain.RecipientQuery, event domain.EventType) ([]string, error) {
	if rq.Empty() {
		return []string{}, nil
	}

	const q = `
		SELECT DISTINCT dt.token
		FROM users u
		JOIN device_tokens dt ON dt.user_id = u.id
		LEFT JOIN notification_settings ns
		       ON ns.user_id = u.id AND ns.event_type = @event_type
		WHERE u.active
		  AND COALESCE(ns.enabled, TRUE)
		  AND (u.id = ANY(@user_ids::uuid[]) OR u.role = ANY(@roles::text[]))
		  AND (@exclude::uuid IS NULL OR u.id <> @exclude)
		ORDER BY dt.token`

	userIDs := make([]string, len(rq.UserIDs))
	for i, id := range rq.UserIDs {
		userIDs[i] = id.String()
	}
	roles := rq.Roles
	if roles == nil {
		roles = []string{}
	}

	args := pgx.NamedArgs{
		"event_type": string(event),
		"user_ids":   userIDs,
		"roles":      roles,
		"exclude":    rq.Exclude,
	}

	rows, err := r.db.Query(ctx, q, args)
	if err != nil {
		return nil, fmt.Errorf("repo.RecipientRepo.EnabledRecipients: %w", err)
	}
	tokens, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("repo.RecipientRepo.EnabledRecipients: %w", err)
	}
	return tokens, nil
}
