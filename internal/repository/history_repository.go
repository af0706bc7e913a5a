package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/ecogov/be-inspections/internal/apperrors"
	"github.com/ecogov/be-inspections/internal/database"
	"github.com/ecogov/be-inspections/internal/workflow"
)

// HistoryRepository reads the append-only workflow history. Entries are
// written only inside CommitTransition; the table carries a delete-prevention
// trigger so no mutation surface exists here.
type HistoryRepository struct {
	db *database.DB
}

// NewHistoryRepository creates a new history repository.
func NewHistoryRepository(db *database.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// ListByInspection returns the full trail in insertion order (oldest first).
func (r *HistoryRepository) ListByInspection(ctx context.Context, inspectionID string) ([]workflow.HistoryEntry, error) {
	query := `
		SELECT id, inspection_id, action, actor_id, actor_name, actor_role,
		       comment, stage, created_at
		FROM inspection_history
		WHERE inspection_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, inspectionID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to get workflow history")
	}
	defer rows.Close()

	return scanHistory(rows)
}

func scanHistory(rows pgx.Rows) ([]workflow.HistoryEntry, error) {
	var entries []workflow.HistoryEntry
	for rows.Next() {
		var e workflow.HistoryEntry
		var action, role string
		var stage int
		if err := rows.Scan(&e.ID, &e.InspectionID, &action, &e.ActorID, &e.ActorName,
			&role, &e.Comment, &stage, &e.CreatedAt); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan history entry")
		}
		e.Action = workflow.Action(action)
		e.ActorRole = workflow.Role(role)
		e.Stage = workflow.Stage(stage)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
