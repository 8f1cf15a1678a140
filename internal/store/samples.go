package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AppendSamples persists a batch of samples in a single transaction.
// Either every sample in the batch lands or none do. Zero timestamps are
// stamped with the current time; error messages are truncated to MaxErrorLen.
func (db *DB) AppendSamples(ctx context.Context, batch []Sample) error {
	if len(batch) == 0 {
		return nil
	}
	for i := range batch {
		if err := validateSample(&batch[i]); err != nil {
			return err
		}
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, db.rebind(`
		INSERT INTO samples (ts_utc, cycle_id, route_id, provider, status, duration_sec, distance_m, error, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range batch {
		s := &batch[i]
		ts := s.TS
		if ts.IsZero() {
			ts = now
			s.TS = now
		}
		if _, err := stmt.ExecContext(ctx, formatTS(ts), s.CycleID, s.RouteID, s.Provider,
			s.Status, s.DurationSec, s.DistanceM, s.Error, s.Raw); err != nil {
			return fmt.Errorf("failed to insert sample (route=%d provider=%s): %w", s.RouteID, s.Provider, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit samples: %w", err)
	}
	return nil
}

// validateSample enforces the status invariant before anything is written:
// ok samples carry duration+distance and no error, error samples the reverse.
func validateSample(s *Sample) error {
	switch s.Status {
	case StatusOK:
		if s.DurationSec == nil || s.DistanceM == nil || s.Error != nil {
			return fmt.Errorf("invalid ok sample (route=%d provider=%s)", s.RouteID, s.Provider)
		}
	case StatusError:
		if s.Error == nil || s.DurationSec != nil || s.DistanceM != nil {
			return fmt.Errorf("invalid error sample (route=%d provider=%s)", s.RouteID, s.Provider)
		}
		if len(*s.Error) > MaxErrorLen {
			msg := (*s.Error)[:MaxErrorLen]
			s.Error = &msg
		}
	default:
		return fmt.Errorf("invalid sample status %q", s.Status)
	}
	return nil
}

// QuerySamples returns samples with ts_utc >= since in ascending time order.
// Empty provider / zero routeID mean no filter on that field.
func (db *DB) QuerySamples(ctx context.Context, since time.Time, provider string, routeID int64) ([]Sample, error) {
	query := `
		SELECT id, ts_utc, cycle_id, route_id, provider, status, duration_sec, distance_m, error, raw
		FROM samples WHERE ts_utc >= ?
	`
	args := []any{formatTS(since)}

	if provider != "" {
		query += " AND provider = ?"
		args = append(args, provider)
	}
	if routeID != 0 {
		query += " AND route_id = ?"
		args = append(args, routeID)
	}
	query += " ORDER BY ts_utc ASC, id ASC"

	rows, err := db.conn.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		samples = append(samples, *s)
	}
	return samples, rows.Err()
}

// LatestSample returns the most recent sample for a (route, provider) pair,
// or nil when none has been recorded yet.
func (db *DB) LatestSample(ctx context.Context, routeID int64, provider string) (*Sample, error) {
	row := db.conn.QueryRowContext(ctx, db.rebind(`
		SELECT id, ts_utc, cycle_id, route_id, provider, status, duration_sec, distance_m, error, raw
		FROM samples WHERE route_id = ? AND provider = ?
		ORDER BY ts_utc DESC, id DESC LIMIT 1
	`), routeID, provider)

	s, err := scanSample(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest sample: %w", err)
	}
	return s, nil
}

func scanSample(row rowScanner) (*Sample, error) {
	var s Sample
	var ts string
	if err := row.Scan(&s.ID, &ts, &s.CycleID, &s.RouteID, &s.Provider, &s.Status,
		&s.DurationSec, &s.DistanceM, &s.Error, &s.Raw); err != nil {
		return nil, err
	}
	t, err := parseTS(ts)
	if err != nil {
		return nil, fmt.Errorf("bad ts_utc %q: %w", ts, err)
	}
	s.TS = t
	return &s, nil
}
