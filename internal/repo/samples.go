package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"microlab/internal/domain"
)

const sampleCols = `id,form_id,product,COALESCE(site,'') AS site,status,organoleptic,ph,
	COALESCE(sample_date,'') AS sample_date,created_at,updated_at`

func scanSample(scan func(dest ...any) error) (domain.Sample, error) {
	var s domain.Sample
	var organoleptic sql.NullString
	var ph sql.NullFloat64
	err := scan(&s.ID, &s.FormID, &s.Product, &s.Site, &s.Status, &organoleptic, &ph,
		&s.SampleDate, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if organoleptic.Valid {
		s.Organoleptic = &organoleptic.String
	}
	if ph.Valid {
		s.PH = &ph.Float64
	}
	return s, err
}

func (r Repo) InsertSample(ctx context.Context, tx *sql.Tx, s domain.Sample) error {
	var organoleptic, ph any
	if s.Organoleptic != nil {
		organoleptic = *s.Organoleptic
	}
	if s.PH != nil {
		ph = *s.PH
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO samples(id,form_id,product,site,status,organoleptic,ph,sample_date,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.FormID, s.Product, nullable(s.Site), s.Status, organoleptic, ph, nullable(s.SampleDate), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO form_samples(form_id,sample_id) VALUES (?,?)`, s.FormID, s.ID)
	return err
}

func (r Repo) GetSample(ctx context.Context, id string) (domain.Sample, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+sampleCols+` FROM samples WHERE id=?`, id)
	return scanSample(row.Scan)
}

func (r Repo) ListSamplesByForm(ctx context.Context, formID string) ([]domain.Sample, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+sampleCols+` FROM samples WHERE form_id=? ORDER BY created_at`, formID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Sample
	for rows.Next() {
		s, err := scanSample(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// ListSamplesByFormIDs fetches samples for a set of forms, optionally
// filtered by status. Used by the waiting-room aggregation.
func (r Repo) ListSamplesByFormIDs(ctx context.Context, formIDs []string, status string) ([]domain.Sample, error) {
	if len(formIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(formIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(formIDs)+1)
	for _, id := range formIDs {
		args = append(args, id)
	}
	q := `SELECT ` + sampleCols + ` FROM samples WHERE form_id IN (` + placeholders + `)`
	if status != "" {
		q += ` AND status=?`
		args = append(args, status)
	}
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Sample
	for rows.Next() {
		s, err := scanSample(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) UpdateSampleStatus(ctx context.Context, id, status, now string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE samples SET status=?, updated_at=? WHERE id=?`, status, now, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateSampleResults(ctx context.Context, id string, organoleptic *string, ph *float64, now string) error {
	var (
		fields []string
		args   []any
	)
	if organoleptic != nil {
		fields = append(fields, "organoleptic=?")
		args = append(args, nullable(*organoleptic))
	}
	if ph != nil {
		fields = append(fields, "ph=?")
		args = append(args, *ph)
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, now, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE samples SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSamplesByForm removes the form_samples links first, then the
// sample rows. Both deletes run on the bare connection; callers sequence
// them inside the form cascade.
func (r Repo) DeleteFormSampleLinks(ctx context.Context, formID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM form_samples WHERE form_id=?`, formID)
	return err
}

func (r Repo) DeleteSamplesByForm(ctx context.Context, formID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM samples WHERE form_id=?`, formID)
	return err
}
