package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ecogov/be-inspections/internal/apperrors"
	"github.com/ecogov/be-inspections/internal/database"
	"github.com/ecogov/be-inspections/internal/workflow"
)

// PersonnelRepository reads the personnel registry. It implements
// routing.Directory; law filtering happens in the resolver because the
// section key is a comma-joined string, not a relation.
type PersonnelRepository struct {
	db *database.DB
}

// NewPersonnelRepository creates a new personnel repository.
func NewPersonnelRepository(db *database.DB) *PersonnelRepository {
	return &PersonnelRepository{db: db}
}

// FindByRole returns all active personnel holding a role.
func (r *PersonnelRepository) FindByRole(ctx context.Context, role workflow.Role) ([]workflow.Personnel, error) {
	query := `
		SELECT id, name, role, district, section_key, active
		FROM personnel
		WHERE role = $1 AND active
		ORDER BY name ASC
	`

	rows, err := r.db.Query(ctx, query, string(role))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to query personnel")
	}
	defer rows.Close()

	return scanPersonnel(rows)
}

// GetByID returns one personnel record.
func (r *PersonnelRepository) GetByID(ctx context.Context, id string) (*workflow.Personnel, error) {
	query := `
		SELECT id, name, role, district, section_key, active
		FROM personnel
		WHERE id = $1
	`

	var p workflow.Personnel
	var role string
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &role, &p.District, &p.SectionKey, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("personnel", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to get personnel")
	}
	p.Role = workflow.Role(role)
	return &p, nil
}

func scanPersonnel(rows pgx.Rows) ([]workflow.Personnel, error) {
	var personnel []workflow.Personnel
	for rows.Next() {
		var p workflow.Personnel
		var role string
		if err := rows.Scan(&p.ID, &p.Name, &role, &p.District, &p.SectionKey, &p.Active); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan personnel")
		}
		p.Role = workflow.Role(role)
		personnel = append(personnel, p)
	}
	return personnel, rows.Err()
}
