package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"microlab/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func (r Repo) InsertLab(ctx context.Context, l domain.Lab) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO labs(id,name,description,created_at) VALUES (?,?,?,?)`,
		l.ID, l.Name, nullable(l.Description), l.CreatedAt)
	return err
}

func (r Repo) GetLab(ctx context.Context, id string) (domain.Lab, error) {
	var l domain.Lab
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,COALESCE(description,'') AS description,created_at FROM labs WHERE id=?`, id).
		Scan(&l.ID, &l.Name, &l.Description, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	return l, err
}

func (r Repo) SingleLab(ctx context.Context) (domain.Lab, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(description,'') AS description,created_at FROM labs`)
	if err != nil {
		return domain.Lab{}, err
	}
	defer rows.Close()
	var labs []domain.Lab
	for rows.Next() {
		var l domain.Lab
		if err := rows.Scan(&l.ID, &l.Name, &l.Description, &l.CreatedAt); err != nil {
			return domain.Lab{}, err
		}
		labs = append(labs, l)
	}
	if len(labs) == 0 {
		return domain.Lab{}, ErrNotFound
	}
	if len(labs) > 1 {
		return domain.Lab{}, fmt.Errorf("multiple labs exist; specify --lab")
	}
	return labs[0], nil
}

func (r Repo) UpsertLabConfig(ctx context.Context, labID, configJSON, now string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO lab_configs(lab_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
		ON CONFLICT(lab_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`,
		labID, configJSON, now, now)
	return err
}

func (r Repo) GetLabConfig(ctx context.Context, labID string) (string, error) {
	var configJSON string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM lab_configs WHERE lab_id=?`, labID).Scan(&configJSON)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return configJSON, err
}

const formCols = `id,lab_id,title,COALESCE(brand,'') AS brand,COALESCE(site,'') AS site,
	COALESCE(sample_date,'') AS sample_date,COALESCE(analysis_date,'') AS analysis_date,
	status,legacy_ref,created_at,updated_at`

func scanForm(scan func(dest ...any) error) (domain.Form, error) {
	var f domain.Form
	var legacyRef sql.NullString
	err := scan(&f.ID, &f.LabID, &f.Title, &f.Brand, &f.Site,
		&f.SampleDate, &f.AnalysisDate, &f.Status, &legacyRef, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return f, ErrNotFound
	}
	if legacyRef.Valid {
		f.LegacyRef = &legacyRef.String
	}
	return f, err
}

func (r Repo) InsertForm(ctx context.Context, f domain.Form) error {
	var legacyRef any
	if f.LegacyRef != nil {
		legacyRef = *f.LegacyRef
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO sample_forms(id,lab_id,title,brand,site,sample_date,analysis_date,status,legacy_ref,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		f.ID, f.LabID, f.Title, nullable(f.Brand), nullable(f.Site), nullable(f.SampleDate), nullable(f.AnalysisDate),
		f.Status, legacyRef, f.CreatedAt, f.UpdatedAt)
	return err
}

func (r Repo) GetForm(ctx context.Context, id string) (domain.Form, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+formCols+` FROM sample_forms WHERE id=?`, id)
	return scanForm(row.Scan)
}

// GetFormByLegacyRef resolves forms keyed by the legacy reference instead
// of the primary id.
func (r Repo) GetFormByLegacyRef(ctx context.Context, ref string) (domain.Form, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+formCols+` FROM sample_forms WHERE legacy_ref=?`, ref)
	return scanForm(row.Scan)
}

func (r Repo) ListForms(ctx context.Context, labID string) ([]domain.Form, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+formCols+` FROM sample_forms WHERE lab_id=? ORDER BY created_at DESC`, labID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Form
	for rows.Next() {
		f, err := scanForm(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

func (r Repo) ListFormsByIDs(ctx context.Context, ids []string) ([]domain.Form, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+formCols+` FROM sample_forms WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Form
	for rows.Next() {
		f, err := scanForm(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

func (r Repo) UpdateForm(ctx context.Context, id string, title, brand, site, sampleDate, analysisDate, status *string, now string) error {
	var (
		fields []string
		args   []any
	)
	set := func(col string, v *string) {
		if v != nil {
			fields = append(fields, col+"=?")
			args = append(args, nullable(*v))
		}
	}
	set("title", title)
	set("brand", brand)
	set("site", site)
	set("sample_date", sampleDate)
	set("analysis_date", analysisDate)
	if status != nil {
		fields = append(fields, "status=?")
		args = append(args, *status)
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, now, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE sample_forms SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteForm removes the form row itself. Dependent rows are removed first
// by the engine's cascade.
func (r Repo) DeleteForm(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM sample_forms WHERE id=?`, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AuditAfter returns audit entries with id > cursor in insertion order,
// for webhook delivery.
func (r Repo) AuditAfter(ctx context.Context, limit int, cursor int64, labID string) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,action,COALESCE(lab_id,'') AS lab_id,entity_kind,COALESCE(entity_id,'') AS entity_id,actor_id,payload_json
		FROM audit_logs WHERE id>? AND lab_id=? ORDER BY id LIMIT ?`, cursor, labID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.TS, &e.Action, &e.LabID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) LatestAuditID(ctx context.Context, labID string) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM audit_logs WHERE lab_id=?`, labID).Scan(&id)
	return id, err
}

func (r Repo) ListAudit(ctx context.Context, labID string, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,action,COALESCE(lab_id,'') AS lab_id,entity_kind,COALESCE(entity_id,'') AS entity_id,actor_id,payload_json
		FROM audit_logs WHERE lab_id=? ORDER BY id DESC LIMIT ?`, labID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.TS, &e.Action, &e.LabID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
