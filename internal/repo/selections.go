package repo

import (
	"context"
	"database/sql"

	"microlab/internal/domain"
)

const selectionCols = `id,form_id,bacteria_name,bacteria_delay,reading_day,status,created_at,modified_at`

func scanSelection(scan func(dest ...any) error) (domain.BacteriaSelection, error) {
	var s domain.BacteriaSelection
	err := scan(&s.ID, &s.FormID, &s.BacteriaName, &s.Delay, &s.ReadingDay, &s.Status, &s.CreatedAt, &s.ModifiedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) ListSelectionsByForm(ctx context.Context, formID string) ([]domain.BacteriaSelection, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+selectionCols+` FROM form_bacteria_selections WHERE form_id=? ORDER BY created_at`, formID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.BacteriaSelection
	for rows.Next() {
		s, err := scanSelection(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// ListSelectionsByStatus returns every selection row in one of the given
// statuses, across all forms. The waiting room calls this with all three
// statuses; completed rows still render on forms with open readings.
func (r Repo) ListSelectionsByStatus(ctx context.Context, statuses ...string) ([]domain.BacteriaSelection, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := ""
	args := make([]any, len(statuses))
	for i, s := range statuses {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = s
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+selectionCols+` FROM form_bacteria_selections WHERE status IN (`+placeholders+`) ORDER BY created_at`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.BacteriaSelection
	for rows.Next() {
		s, err := scanSelection(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) GetSelection(ctx context.Context, formID, bacteriaName string) (domain.BacteriaSelection, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+selectionCols+` FROM form_bacteria_selections WHERE form_id=? AND bacteria_name=?`, formID, bacteriaName)
	return scanSelection(row.Scan)
}

// ReplaceSelections removes every selection row for the form and inserts
// the given rows in one transaction. Full replace keeps the table an
// exact mirror of the current selection.
func (r Repo) ReplaceSelections(ctx context.Context, tx *sql.Tx, formID string, rows []domain.BacteriaSelection) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM form_bacteria_selections WHERE form_id=?`, formID); err != nil {
		return err
	}
	for _, s := range rows {
		_, err := tx.ExecContext(ctx, `INSERT INTO form_bacteria_selections(id,form_id,bacteria_name,bacteria_delay,reading_day,status,created_at,modified_at)
			VALUES (?,?,?,?,?,?,?,?)`,
			s.ID, formID, s.BacteriaName, s.Delay, s.ReadingDay, s.Status, s.CreatedAt, s.ModifiedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) UpdateSelectionStatus(ctx context.Context, tx *sql.Tx, formID, bacteriaName, status, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE form_bacteria_selections SET status=?, modified_at=? WHERE form_id=? AND bacteria_name=?`,
		status, now, formID, bacteriaName)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteSelectionsByForm(ctx context.Context, formID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM form_bacteria_selections WHERE form_id=?`, formID)
	return err
}
