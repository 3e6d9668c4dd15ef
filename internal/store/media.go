package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// GetMediaSlot returns the download recorded for slot, or nil.
func (db *DB) GetMediaSlot(ctx context.Context, slot string) (*MediaSlot, error) {
	var (
		m       MediaSlot
		updated int64
	)
	err := db.QueryRowContext(ctx, `
		SELECT slot, source_url, local_path, updated_at
		FROM media_slots WHERE slot = ?`, slot).
		Scan(&m.Slot, &m.SourceURL, &m.LocalPath, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.UpdatedAt = time.UnixMilli(updated).UTC()
	return &m, nil
}

// PutMediaSlot records that slot is now served by localPath.
func (db *DB) PutMediaSlot(ctx context.Context, m *MediaSlot) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO media_slots (slot, source_url, local_path, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			source_url = excluded.source_url,
			local_path = excluded.local_path,
			updated_at = excluded.updated_at`,
		m.Slot, m.SourceURL, m.LocalPath, time.Now().UnixMilli())
	return err
}

// DeleteMediaSlots forgets every recorded download. Files are the caller's concern.
func (db *DB) DeleteMediaSlots(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `DELETE FROM media_slots`)
	return err
}
