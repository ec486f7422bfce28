package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func getMetadata(ctx context.Context, q querier, key string) (string, error) {
	var value sql.NullString
	err := q.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound("get_metadata", "metadata key %q", key)
	}
	return value.String, err
}

func setMetadata(ctx context.Context, q querier, key, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// GetMetadata retrieves a metadata value by key.
// Returns an ErrNotFound StoreError if the key doesn't exist.
func (d *Database) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := d.read(ctx, "get_metadata", func(ctx context.Context, q querier) error {
		var err error
		value, err = getMetadata(ctx, q, key)
		return err
	})
	return value, err
}

// SetMetadata sets a metadata key-value pair.
func (d *Database) SetMetadata(ctx context.Context, key, value string) error {
	return d.write(ctx, "set_metadata", func(tx *Tx) error {
		return tx.SetMetadata(key, value)
	})
}

// GetMetadata reads a metadata value inside the transaction.
func (t *Tx) GetMetadata(key string) (string, error) {
	value, err := getMetadata(t.ctx, t.tx, key)
	return value, wrapErr("get_metadata", err)
}

// SetMetadata writes a metadata value inside the transaction.
func (t *Tx) SetMetadata(key, value string) error {
	return wrapErr("set_metadata", setMetadata(t.ctx, t.tx, key, value))
}

// LegacyMigrationCompletedAt returns when the legacy migration finished, or
// the zero time if it never ran.
func (d *Database) LegacyMigrationCompletedAt(ctx context.Context) (time.Time, error) {
	value, err := d.GetMetadata(ctx, MetaLegacyMigrationCompletedAt)
	if errors.Is(err, ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, value)
}
