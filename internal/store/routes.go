package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrRouteNotFound is returned when a route id does not exist
var ErrRouteNotFound = errors.New("route not found")

// CreateRoute inserts a new route and returns its id
func (db *DB) CreateRoute(ctx context.Context, r Route) (int64, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	var id int64
	err := db.conn.QueryRowContext(ctx, db.rebind(`
		INSERT INTO routes (name, enabled, start_lat, start_lng, end_lat, end_lng, region, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`), r.Name, r.Enabled, r.StartLat, r.StartLng, r.EndLat, r.EndLng, r.Region, formatTS(created)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert route: %w", err)
	}
	return id, nil
}

// GetRoute returns the route with the given id, or ErrRouteNotFound
func (db *DB) GetRoute(ctx context.Context, id int64) (*Route, error) {
	row := db.conn.QueryRowContext(ctx, db.rebind(`
		SELECT id, name, enabled, start_lat, start_lng, end_lat, end_lng, region, created_at
		FROM routes WHERE id = ?
	`), id)

	r, err := scanRoute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRouteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get route: %w", err)
	}
	return r, nil
}

// ListRoutes returns all routes, most recent first
func (db *DB) ListRoutes(ctx context.Context) ([]Route, error) {
	return db.listRoutes(ctx, `
		SELECT id, name, enabled, start_lat, start_lng, end_lat, end_lng, region, created_at
		FROM routes ORDER BY id DESC
	`)
}

// ListEnabledRoutes returns enabled routes in ascending id order.
// The collector consumes this, so polling order is stable across cycles.
func (db *DB) ListEnabledRoutes(ctx context.Context) ([]Route, error) {
	return db.listRoutes(ctx, `
		SELECT id, name, enabled, start_lat, start_lng, end_lat, end_lng, region, created_at
		FROM routes WHERE enabled ORDER BY id ASC
	`)
}

func (db *DB) listRoutes(ctx context.Context, query string) ([]Route, error) {
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}
	defer rows.Close()

	var routes []Route
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan route: %w", err)
		}
		routes = append(routes, *r)
	}
	return routes, rows.Err()
}

// ToggleRoute flips the enabled flag of a route
func (db *DB) ToggleRoute(ctx context.Context, id int64) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	result, err := db.conn.ExecContext(ctx,
		db.rebind(`UPDATE routes SET enabled = NOT enabled WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to toggle route: %w", err)
	}
	return checkFound(result)
}

// DeleteRoute removes a route; its samples go with it via cascade
func (db *DB) DeleteRoute(ctx context.Context, id int64) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	result, err := db.conn.ExecContext(ctx,
		db.rebind(`DELETE FROM routes WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete route: %w", err)
	}
	return checkFound(result)
}

func checkFound(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrRouteNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoute(row rowScanner) (*Route, error) {
	var r Route
	var created string
	if err := row.Scan(&r.ID, &r.Name, &r.Enabled, &r.StartLat, &r.StartLng, &r.EndLat, &r.EndLng, &r.Region, &created); err != nil {
		return nil, err
	}
	ts, err := parseTS(created)
	if err != nil {
		return nil, fmt.Errorf("bad created_at %q: %w", created, err)
	}
	r.CreatedAt = ts
	return &r, nil
}
