package storage

import (
	"context"
	"encoding/json"

	"github.com/medibook/medibook/libs/db"
	"github.com/medibook/medibook/services/booking-service/internal/availability"
)

type TemplateRepository struct {
	pool *db.Pool
}

func NewTemplateRepository(pool *db.Pool) *TemplateRepository {
	return &TemplateRepository{pool: pool}
}

func (r *TemplateRepository) GetTemplate(ctx context.Context, doctorID string) (availability.Template, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `
		SELECT weekly
		FROM doctor_availability
		WHERE doctor_id = $1
	`, doctorID).Scan(&raw)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var tpl availability.Template
	if err := json.Unmarshal(raw, &tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

func (r *TemplateRepository) SaveTemplate(ctx context.Context, doctorID string, tpl availability.Template) error {
	raw, err := json.Marshal(tpl)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO doctor_availability (doctor_id, weekly)
		VALUES ($1, $2)
		ON CONFLICT (doctor_id) DO UPDATE
		SET weekly = EXCLUDED.weekly,
			updated_at = now()
	`, doctorID, raw)
	return err
}

// EnsureTemplate creates an empty template and reports whether it did.
func (r *TemplateRepository) EnsureTemplate(ctx context.Context, doctorID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO doctor_availability (doctor_id)
		VALUES ($1)
		ON CONFLICT (doctor_id) DO NOTHING
	`, doctorID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
