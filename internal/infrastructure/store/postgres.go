package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/groshare/groupbuy/internal/domain/order"
)

// Postgres stores orders as JSONB documents with a version column for
// optimistic concurrency, plus denormalized columns for filtering.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the orders table if it does not exist.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS group_orders (
			id               TEXT PRIMARY KEY,
			organizer        TEXT NOT NULL,
			status           TEXT NOT NULL,
			category         TEXT NOT NULL,
			city             TEXT NOT NULL,
			area             TEXT NOT NULL,
			current_quantity DOUBLE PRECISION NOT NULL,
			price_per_unit   DOUBLE PRECISION NOT NULL,
			deadline         TIMESTAMPTZ NOT NULL,
			created_at       TIMESTAMPTZ NOT NULL,
			version          INTEGER NOT NULL,
			data             JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_group_orders_status ON group_orders (status, deadline);
		CREATE INDEX IF NOT EXISTS idx_group_orders_location ON group_orders (city, area);
		CREATE INDEX IF NOT EXISTS idx_group_orders_category ON group_orders (category);
	`)
	return err
}

func (s *Postgres) Get(ctx context.Context, id string) (*order.Order, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM group_orders WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	var o order.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

func (s *Postgres) Save(ctx context.Context, o *order.Order, expectedVersion int) (*order.Order, error) {
	saved := o.Clone()
	saved.Version = expectedVersion + 1

	data, err := json.Marshal(saved)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}

	if expectedVersion == 0 {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO group_orders
				(id, organizer, status, category, city, area, current_quantity, price_per_unit, deadline, created_at, version, data)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (id) DO NOTHING`,
			saved.ID, saved.Organizer, string(saved.Status), saved.Category,
			saved.Location.City, saved.Location.Area, saved.CurrentQuantity,
			saved.PricePerUnit, saved.Deadline, saved.CreatedAt, saved.Version, data)
		if err != nil {
			return nil, fmt.Errorf("insert order: %w", err)
		}
		// ON CONFLICT DO NOTHING reports 0 rows when the id already exists.
		var version int
		if err := s.db.QueryRowContext(ctx, `SELECT version FROM group_orders WHERE id = $1`, saved.ID).Scan(&version); err != nil {
			return nil, fmt.Errorf("verify insert: %w", err)
		}
		if version != saved.Version {
			return nil, ErrVersionConflict
		}
		return saved, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE group_orders
		SET organizer = $2, status = $3, category = $4, city = $5, area = $6,
		    current_quantity = $7, price_per_unit = $8, deadline = $9,
		    version = $10, data = $11
		WHERE id = $1 AND version = $12`,
		saved.ID, saved.Organizer, string(saved.Status), saved.Category,
		saved.Location.City, saved.Location.Area, saved.CurrentQuantity,
		saved.PricePerUnit, saved.Deadline, saved.Version, data, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	if affected == 0 {
		if _, err := s.Get(ctx, saved.ID); errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrVersionConflict
	}
	return saved, nil
}

func (s *Postgres) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM group_orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) Query(ctx context.Context, f Filter, srt Sort, p Page) ([]*order.Order, int, error) {
	where, args := buildWhere(f)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM group_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	p = p.Normalize()
	query := `SELECT data FROM group_orders` + where + orderBy(srt) +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, p.Limit, (p.Number-1)*p.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []*order.Order
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, 0, err
		}
		var o order.Order
		if err := json.Unmarshal(data, &o); err != nil {
			return nil, 0, fmt.Errorf("unmarshal order: %w", err)
		}
		out = append(out, &o)
	}
	return out, total, rows.Err()
}

func buildWhere(f Filter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	if f.City != "" {
		add("city = $%d", f.City)
	}
	if f.Area != "" {
		add("area = $%d", f.Area)
	}
	if f.UserID != "" {
		add(`(organizer = $%d OR data->'participants' @> jsonb_build_array(jsonb_build_object('user_id', $%[1]d::text)))`, f.UserID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// orderBy whitelists sortable columns; anything else falls back to created_at.
func orderBy(s Sort) string {
	col := "created_at"
	switch s.Field {
	case "deadline", "current_quantity", "price_per_unit", "created_at":
		col = s.Field
	}
	dir := "ASC"
	if s.Descending {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s", col, dir)
}
