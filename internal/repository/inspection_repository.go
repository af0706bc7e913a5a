// Package repository implements the pgx-backed persistence layer: the
// inspection record, the personnel registry, the append-only workflow
// history, and server-side draft payloads.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ecogov/be-inspections/internal/apperrors"
	"github.com/ecogov/be-inspections/internal/database"
	"github.com/ecogov/be-inspections/internal/workflow"
)

// ListFilter narrows List queries; nil fields match everything.
type ListFilter struct {
	District *string
	Law      *workflow.Law
	Stage    *workflow.Stage
}

// InspectionRepository handles inspection persistence.
type InspectionRepository struct {
	db *database.DB
}

// NewInspectionRepository creates a new inspection repository.
func NewInspectionRepository(db *database.DB) *InspectionRepository {
	return &InspectionRepository{db: db}
}

const inspectionColumns = `
	id, code, establishment_id, establishment_name, province, city, district,
	law, stage,
	legal_unit_id, division_chief_id, section_chief_id, unit_head_id, monitoring_id,
	workflow_comments, billing_reference, compliance_call_notes, inspection_notes,
	created_by, created_at, updated_at
`

// Create inserts a new inspection.
func (r *InspectionRepository) Create(ctx context.Context, insp *workflow.Inspection) error {
	query := `
		INSERT INTO inspections
		    (code, establishment_id, establishment_name, province, city, district,
		     law, stage, legal_unit_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		insp.Code,
		insp.EstablishmentID,
		insp.EstablishmentName,
		insp.Province,
		insp.City,
		insp.District,
		string(insp.Law),
		int(insp.Stage),
		insp.LegalUnitID,
		insp.CreatedBy,
	).Scan(&insp.ID, &insp.CreatedAt, &insp.UpdatedAt)

	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to create inspection")
	}
	return nil
}

// GetByID returns one inspection.
func (r *InspectionRepository) GetByID(ctx context.Context, id string) (*workflow.Inspection, error) {
	query := `SELECT` + inspectionColumns + `FROM inspections WHERE id = $1`

	insp, err := scanInspection(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("inspection", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to get inspection")
	}
	return insp, nil
}

// ActiveForEstablishment returns the non-terminal inspection covering an
// establishment, or nil. Used by the wizard's duplicate check.
func (r *InspectionRepository) ActiveForEstablishment(ctx context.Context, establishmentID string) (*workflow.Inspection, error) {
	query := `SELECT` + inspectionColumns + `
		FROM inspections
		WHERE establishment_id = $1 AND stage NOT IN ($2, $3)
		ORDER BY created_at DESC
		LIMIT 1`

	insp, err := scanInspection(r.db.QueryRow(ctx, query,
		establishmentID, int(workflow.StageCompleted), int(workflow.StageRejected)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to check establishment coverage")
	}
	return insp, nil
}

// LatestLawForEstablishment returns the statute of the establishment's most
// recent inspection, or "" when it has never been inspected. Feeds the
// wizard's advisory conflict check.
func (r *InspectionRepository) LatestLawForEstablishment(ctx context.Context, establishmentID string) (workflow.Law, error) {
	query := `
		SELECT law FROM inspections
		WHERE establishment_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	var law string
	err := r.db.QueryRow(ctx, query, establishmentID).Scan(&law)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to get latest law")
	}
	return workflow.Law(law), nil
}

// List returns a page of inspections matching filter, newest first.
func (r *InspectionRepository) List(ctx context.Context, filter ListFilter, page, pageSize int) ([]*workflow.Inspection, int, error) {
	where := ` WHERE ($1::text IS NULL OR district = $1)
	           AND ($2::text IS NULL OR law = $2)
	           AND ($3::int IS NULL OR stage = $3)`

	var law *string
	if filter.Law != nil {
		l := string(*filter.Law)
		law = &l
	}
	var stage *int
	if filter.Stage != nil {
		s := int(*filter.Stage)
		stage = &s
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM inspections`+where,
		filter.District, law, stage).Scan(&total); err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to count inspections")
	}

	query := `SELECT` + inspectionColumns + `FROM inspections` + where + `
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`

	rows, err := r.db.Query(ctx, query, filter.District, law, stage, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list inspections")
	}
	defer rows.Close()

	inspections, err := scanInspections(rows)
	if err != nil {
		return nil, 0, err
	}
	return inspections, total, nil
}

// PendingForAssignee returns the non-terminal inspections currently waiting
// on a specific personnel id in any assignee slot.
func (r *InspectionRepository) PendingForAssignee(ctx context.Context, personnelID string) ([]*workflow.Inspection, error) {
	query := `SELECT` + inspectionColumns + `
		FROM inspections
		WHERE stage NOT IN ($1, $2)
		  AND (legal_unit_id = $3 OR division_chief_id = $3 OR section_chief_id = $3
		       OR unit_head_id = $3 OR monitoring_id = $3)
		ORDER BY updated_at ASC`

	rows, err := r.db.Query(ctx, query,
		int(workflow.StageCompleted), int(workflow.StageRejected), personnelID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list pending inspections")
	}
	defer rows.Close()

	return scanInspections(rows)
}

// CommitTransition persists a state-machine transition atomically: the stage,
// assignee, and payload update plus the history entry commit together or not
// at all. The stage predicate rejects a concurrent transition that already
// moved the record (sequential ordering per inspection).
func (r *InspectionRepository) CommitTransition(ctx context.Context, from workflow.Stage, t *workflow.Transition) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		updated := t.Updated
		query := `
			UPDATE inspections
			SET stage = $1,
			    legal_unit_id = $2, division_chief_id = $3, section_chief_id = $4,
			    unit_head_id = $5, monitoring_id = $6,
			    workflow_comments = $7, billing_reference = $8,
			    compliance_call_notes = $9, inspection_notes = $10,
			    updated_at = $11
			WHERE id = $12 AND stage = $13
		`

		tag, err := tx.Exec(ctx, query,
			int(updated.Stage),
			updated.LegalUnitID,
			updated.DivisionChiefID,
			updated.SectionChiefID,
			updated.UnitHeadID,
			updated.MonitoringID,
			updated.WorkflowComments,
			updated.BillingReference,
			updated.ComplianceCallNotes,
			updated.InspectionNotes,
			updated.UpdatedAt,
			updated.ID,
			int(from),
		)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to update inspection stage")
		}
		if tag.RowsAffected() == 0 {
			return apperrors.Conflict("inspection was modified by a concurrent transition")
		}

		entry := t.Entry
		historyQuery := `
			INSERT INTO inspection_history
			    (id, inspection_id, action, actor_id, actor_name, actor_role,
			     comment, stage, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`
		if _, err := tx.Exec(ctx, historyQuery,
			entry.ID,
			entry.InspectionID,
			string(entry.Action),
			entry.ActorID,
			entry.ActorName,
			string(entry.ActorRole),
			entry.Comment,
			int(entry.Stage),
			entry.CreatedAt,
		); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to append history entry")
		}

		// A terminal transition destroys any server-side draft.
		if updated.Stage.Terminal() {
			if _, err := tx.Exec(ctx,
				`DELETE FROM inspection_drafts WHERE inspection_id = $1`, updated.ID); err != nil {
				return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to clear draft")
			}
		}

		return nil
	})
}

// ── Drafts ────────────────────────────────────────────────────────────────────

// Draft is the server-side copy of an in-progress form payload.
type Draft struct {
	InspectionID string
	Payload      map[string]any
	IsDraft      bool
	SavedAt      time.Time
}

// SaveDraft upserts the draft payload for an inspection. The operation is
// idempotent: re-sending an identical payload just refreshes saved_at.
func (r *InspectionRepository) SaveDraft(ctx context.Context, draft *Draft) error {
	payloadJSON, err := json.Marshal(draft.Payload)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to marshal draft payload")
	}

	query := `
		INSERT INTO inspection_drafts (inspection_id, payload, is_draft, saved_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (inspection_id)
		DO UPDATE SET payload = $2, is_draft = $3, saved_at = NOW()
		RETURNING saved_at
	`
	if err := r.db.QueryRow(ctx, query, draft.InspectionID, payloadJSON, draft.IsDraft).
		Scan(&draft.SavedAt); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to save draft")
	}
	return nil
}

// DeleteDraft removes the draft after final submission or explicit discard.
func (r *InspectionRepository) DeleteDraft(ctx context.Context, inspectionID string) error {
	if _, err := r.db.Exec(ctx,
		`DELETE FROM inspection_drafts WHERE inspection_id = $1`, inspectionID); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to delete draft")
	}
	return nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInspection(sc rowScanner) (*workflow.Inspection, error) {
	insp := &workflow.Inspection{}
	var law string
	var stage int

	err := sc.Scan(
		&insp.ID,
		&insp.Code,
		&insp.EstablishmentID,
		&insp.EstablishmentName,
		&insp.Province,
		&insp.City,
		&insp.District,
		&law,
		&stage,
		&insp.LegalUnitID,
		&insp.DivisionChiefID,
		&insp.SectionChiefID,
		&insp.UnitHeadID,
		&insp.MonitoringID,
		&insp.WorkflowComments,
		&insp.BillingReference,
		&insp.ComplianceCallNotes,
		&insp.InspectionNotes,
		&insp.CreatedBy,
		&insp.CreatedAt,
		&insp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	insp.Law = workflow.Law(law)
	insp.Stage = workflow.Stage(stage)
	return insp, nil
}

func scanInspections(rows pgx.Rows) ([]*workflow.Inspection, error) {
	var inspections []*workflow.Inspection
	for rows.Next() {
		insp, err := scanInspection(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan inspection")
		}
		inspections = append(inspections, insp)
	}
	return inspections, rows.Err()
}
