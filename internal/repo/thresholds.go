package repo

import (
	"context"
	"database/sql"

	"microlab/internal/domain"
)

func (r Repo) UpsertThreshold(ctx context.Context, t domain.ProductThreshold) error {
	var min, max any
	if t.Min != nil {
		min = *t.Min
	}
	if t.Max != nil {
		max = *t.Max
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO product_thresholds(id,product,parameter,min_value,max_value,unit,updated_at)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(product,parameter) DO UPDATE SET min_value=excluded.min_value, max_value=excluded.max_value,
			unit=excluded.unit, updated_at=excluded.updated_at`,
		t.ID, t.Product, t.Parameter, min, max, nullable(t.Unit), t.UpdatedAt)
	return err
}

func scanThreshold(scan func(dest ...any) error) (domain.ProductThreshold, error) {
	var t domain.ProductThreshold
	var min, max sql.NullFloat64
	err := scan(&t.ID, &t.Product, &t.Parameter, &min, &max, &t.Unit, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if min.Valid {
		t.Min = &min.Float64
	}
	if max.Valid {
		t.Max = &max.Float64
	}
	return t, err
}

func (r Repo) ListThresholds(ctx context.Context, product string) ([]domain.ProductThreshold, error) {
	q := `SELECT id,product,parameter,min_value,max_value,COALESCE(unit,'') AS unit,updated_at FROM product_thresholds`
	var args []any
	if product != "" {
		q += ` WHERE product=?`
		args = append(args, product)
	}
	q += ` ORDER BY product,parameter`
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProductThreshold
	for rows.Next() {
		t, err := scanThreshold(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) DeleteThreshold(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM product_thresholds WHERE id=?`, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpsertLocation(ctx context.Context, l domain.AirStaticLocation) error {
	active := 0
	if l.Active {
		active = 1
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO air_static_locations(id,site,name,description,active,created_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(site,name) DO UPDATE SET description=excluded.description, active=excluded.active`,
		l.ID, l.Site, l.Name, nullable(l.Description), active, l.CreatedAt)
	return err
}

func (r Repo) ListLocations(ctx context.Context, site string) ([]domain.AirStaticLocation, error) {
	q := `SELECT id,site,name,COALESCE(description,'') AS description,active,created_at FROM air_static_locations`
	var args []any
	if site != "" {
		q += ` WHERE site=?`
		args = append(args, site)
	}
	q += ` ORDER BY site,name`
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AirStaticLocation
	for rows.Next() {
		var l domain.AirStaticLocation
		var active int
		if err := rows.Scan(&l.ID, &l.Site, &l.Name, &l.Description, &active, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Active = active != 0
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) DeleteLocation(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM air_static_locations WHERE id=?`, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
