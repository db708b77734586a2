package history

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const uniqueViolation = "23505"

func (r *repoPG) Create(ctx context.Context, h *ClinicalHistory) error {
	h.ID = uuid.New()
	err := r.pool.QueryRow(ctx, `
		INSERT INTO clinical_history (id, patient_id, allergies)
		VALUES ($1, $2, '{}')
		RETURNING created_at, updated_at`,
		h.ID, h.PatientID).Scan(&h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicatePatient
		}
		return err
	}
	h.Allergies = []string{}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*ClinicalHistory, error) {
	return r.load(ctx, `WHERE id = $1`, id)
}

func (r *repoPG) GetByPatient(ctx context.Context, patientID uuid.UUID) (*ClinicalHistory, error) {
	return r.load(ctx, `WHERE patient_id = $1`, patientID)
}

func (r *repoPG) load(ctx context.Context, where string, arg interface{}) (*ClinicalHistory, error) {
	var h ClinicalHistory
	err := r.pool.QueryRow(ctx,
		`SELECT id, patient_id, allergies, created_at, updated_at FROM clinical_history `+where,
		arg).Scan(&h.ID, &h.PatientID, &h.Allergies, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := r.loadChildren(ctx, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *repoPG) loadChildren(ctx context.Context, h *ClinicalHistory) error {
	h.Conditions = []Condition{}
	h.Treatments = []Treatment{}
	h.Attachments = []Attachment{}
	if h.Allergies == nil {
		h.Allergies = []string{}
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, history_id, name, details, since, until_date, created_at, updated_at
		FROM history_condition WHERE history_id = $1 ORDER BY created_at, id`, h.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var c Condition
		if err := rows.Scan(&c.ID, &c.HistoryID, &c.Name, &c.Details, &c.Since, &c.Until, &c.CreatedAt, &c.UpdatedAt); err != nil {
			rows.Close()
			return err
		}
		h.Conditions = append(h.Conditions, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.pool.Query(ctx, `
		SELECT id, history_id, name, start_date, end_date, instructions, created_at, updated_at
		FROM history_treatment WHERE history_id = $1 ORDER BY created_at, id`, h.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var t Treatment
		if err := rows.Scan(&t.ID, &t.HistoryID, &t.Name, &t.StartDate, &t.EndDate, &t.Instructions, &t.CreatedAt, &t.UpdatedAt); err != nil {
			rows.Close()
			return err
		}
		h.Treatments = append(h.Treatments, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.pool.Query(ctx, `
		SELECT id, history_id, kind, name, original_name, url, content_type, created_at
		FROM history_attachment WHERE history_id = $1 ORDER BY created_at, id`, h.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.ID, &a.HistoryID, &a.Kind, &a.Name, &a.OriginalName, &a.URL, &a.ContentType, &a.CreatedAt); err != nil {
			rows.Close()
			return err
		}
		h.Attachments = append(h.Attachments, a)
	}
	rows.Close()
	return rows.Err()
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*ClinicalHistory, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM clinical_history`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, patient_id, allergies, created_at, updated_at
		FROM clinical_history ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*ClinicalHistory
	for rows.Next() {
		var h ClinicalHistory
		if err := rows.Scan(&h.ID, &h.PatientID, &h.Allergies, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for _, h := range items {
		if err := r.loadChildren(ctx, h); err != nil {
			return nil, 0, err
		}
	}
	return items, total, nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM clinical_history WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) DeleteByPatient(ctx context.Context, patientID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM clinical_history WHERE patient_id = $1`, patientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// touch bumps the parent record's updated_at after a sub-collection change.
func (r *repoPG) touch(ctx context.Context, historyID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE clinical_history SET updated_at = NOW() WHERE id = $1`, historyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) AddCondition(ctx context.Context, c *Condition) error {
	if err := r.touch(ctx, c.HistoryID); err != nil {
		return err
	}
	c.ID = uuid.New()
	return r.pool.QueryRow(ctx, `
		INSERT INTO history_condition (id, history_id, name, details, since, until_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		c.ID, c.HistoryID, c.Name, c.Details, c.Since, c.Until).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *repoPG) UpdateCondition(ctx context.Context, c *Condition) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE history_condition SET name=$3, details=$4, since=$5, until_date=$6, updated_at=NOW()
		WHERE id = $2 AND history_id = $1`,
		c.HistoryID, c.ID, c.Name, c.Details, c.Since, c.Until)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConditionNotFound
	}
	return r.touch(ctx, c.HistoryID)
}

func (r *repoPG) RemoveCondition(ctx context.Context, historyID, conditionID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM history_condition WHERE id = $2 AND history_id = $1`, historyID, conditionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConditionNotFound
	}
	return r.touch(ctx, historyID)
}

func (r *repoPG) AddTreatment(ctx context.Context, t *Treatment) error {
	if err := r.touch(ctx, t.HistoryID); err != nil {
		return err
	}
	t.ID = uuid.New()
	return r.pool.QueryRow(ctx, `
		INSERT INTO history_treatment (id, history_id, name, start_date, end_date, instructions)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		t.ID, t.HistoryID, t.Name, t.StartDate, t.EndDate, t.Instructions).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *repoPG) UpdateTreatment(ctx context.Context, t *Treatment) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE history_treatment SET name=$3, start_date=$4, end_date=$5, instructions=$6, updated_at=NOW()
		WHERE id = $2 AND history_id = $1`,
		t.HistoryID, t.ID, t.Name, t.StartDate, t.EndDate, t.Instructions)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTreatmentNotFound
	}
	return r.touch(ctx, t.HistoryID)
}

func (r *repoPG) RemoveTreatment(ctx context.Context, historyID, treatmentID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM history_treatment WHERE id = $2 AND history_id = $1`, historyID, treatmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTreatmentNotFound
	}
	return r.touch(ctx, historyID)
}

func (r *repoPG) AddAttachment(ctx context.Context, a *Attachment) error {
	if err := r.touch(ctx, a.HistoryID); err != nil {
		return err
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO history_attachment (id, history_id, kind, name, original_name, url, content_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		a.ID, a.HistoryID, a.Kind, a.Name, a.OriginalName, a.URL, a.ContentType).Scan(&a.CreatedAt)
}

func (r *repoPG) GetAttachment(ctx context.Context, historyID, attachmentID uuid.UUID) (*Attachment, error) {
	var a Attachment
	err := r.pool.QueryRow(ctx, `
		SELECT id, history_id, kind, name, original_name, url, content_type, created_at
		FROM history_attachment WHERE id = $2 AND history_id = $1`,
		historyID, attachmentID).Scan(&a.ID, &a.HistoryID, &a.Kind, &a.Name, &a.OriginalName, &a.URL, &a.ContentType, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *repoPG) RemoveAttachment(ctx context.Context, historyID, attachmentID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM history_attachment WHERE id = $2 AND history_id = $1`, historyID, attachmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFileNotFound
	}
	return r.touch(ctx, historyID)
}

func (r *repoPG) AddAllergy(ctx context.Context, historyID uuid.UUID, allergy string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE clinical_history
		SET allergies = array_append(allergies, $2), updated_at = NOW()
		WHERE id = $1 AND NOT ($2 = ANY(allergies))`,
		historyID, allergy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either the record is missing or the allergy is already present;
		// the latter is a no-op.
		return r.exists(ctx, historyID)
	}
	return nil
}

func (r *repoPG) RemoveAllergy(ctx context.Context, historyID uuid.UUID, allergy string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE clinical_history
		SET allergies = array_remove(allergies, $2), updated_at = NOW()
		WHERE id = $1`,
		historyID, allergy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) exists(ctx context.Context, historyID uuid.UUID) error {
	var one int
	err := r.pool.QueryRow(ctx, `SELECT 1 FROM clinical_history WHERE id = $1`, historyID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
