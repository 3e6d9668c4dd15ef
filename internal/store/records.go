package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LoadRecord returns the record stored under namespace, or nil if the
// namespace has never been saved.
func (db *DB) LoadRecord(ctx context.Context, namespace string) (*Record, error) {
	var (
		rec     Record
		cursor  sql.NullInt64
		updated int64
	)
	err := db.QueryRowContext(ctx, `
		SELECT namespace, payload, cursor, updated_at
		FROM records WHERE namespace = ?`, namespace).
		Scan(&rec.Namespace, &rec.Payload, &cursor, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load record %s: %w", namespace, err)
	}
	if cursor.Valid {
		t := time.UnixMilli(cursor.Int64).UTC()
		rec.Cursor = &t
	}
	rec.UpdatedAt = time.UnixMilli(updated).UTC()
	return &rec, nil
}

// SaveRecord replaces the record stored under rec.Namespace.
func (db *DB) SaveRecord(ctx context.Context, rec *Record) error {
	var cursor sql.NullInt64
	if rec.Cursor != nil {
		cursor = sql.NullInt64{Int64: rec.Cursor.UnixMilli(), Valid: true}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO records (namespace, payload, cursor, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace) DO UPDATE SET
			payload = excluded.payload,
			cursor = excluded.cursor,
			updated_at = excluded.updated_at`,
		rec.Namespace, rec.Payload, cursor, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save record %s: %w", rec.Namespace, err)
	}
	return nil
}

// DeleteRecord removes a namespace entirely.
func (db *DB) DeleteRecord(ctx context.Context, namespace string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM records WHERE namespace = ?`, namespace)
	return err
}

// Namespaces lists every saved namespace, sorted.
func (db *DB) Namespaces(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT namespace FROM records ORDER BY namespace`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, err
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}

// LoadSnapshot adapts LoadRecord to the entity store persistence contract.
func (db *DB) LoadSnapshot(ctx context.Context, namespace string) ([]byte, *time.Time, bool, error) {
	rec, err := db.LoadRecord(ctx, namespace)
	if err != nil || rec == nil {
		return nil, nil, false, err
	}
	return rec.Payload, rec.Cursor, true, nil
}

// SaveSnapshot adapts SaveRecord to the entity store persistence contract.
func (db *DB) SaveSnapshot(ctx context.Context, namespace string, payload []byte, cursor *time.Time) error {
	return db.SaveRecord(ctx, &Record{Namespace: namespace, Payload: payload, Cursor: cursor})
}
