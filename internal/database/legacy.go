package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Legacy table names. The migration moves the flat mosaics table aside
// before the normalized mosaics table takes its name.
const (
	LegacyTable      = "mosaics"
	LegacyMovedTable = "legacy_mosaics"
)

// hasLegacySchema reports whether the mosaics table has the flat legacy
// layout: a movie_file_path column and no movie_id column.
func hasLegacySchema(ctx context.Context, q querier) (bool, error) {
	var legacy bool
	err := q.QueryRowContext(ctx, `
		SELECT
			EXISTS(SELECT 1 FROM pragma_table_info('mosaics') WHERE name = 'movie_file_path')
			AND NOT EXISTS(SELECT 1 FROM pragma_table_info('mosaics') WHERE name = 'movie_id')
	`).Scan(&legacy)
	return legacy, err
}

func countLegacyRows(ctx context.Context, q querier, table string) (int, error) {
	var n int
	// table is one of the two constants above.
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n)
	return n, err
}

// HasLegacySchema reports whether a legacy mosaics table is waiting to be migrated.
func (d *Database) HasLegacySchema(ctx context.Context) (bool, error) {
	var legacy bool
	err := d.read(ctx, "has_legacy_schema", func(ctx context.Context, q querier) error {
		var err error
		legacy, err = hasLegacySchema(ctx, q)
		return err
	})
	return legacy, err
}

// CountLegacyRows counts the rows of the unmigrated legacy table. It fails
// with ErrSchema when there is none.
func (d *Database) CountLegacyRows(ctx context.Context) (int, error) {
	var n int
	err := d.read(ctx, "count_legacy_rows", func(ctx context.Context, q querier) error {
		legacy, err := hasLegacySchema(ctx, q)
		if err != nil {
			return err
		}
		if !legacy {
			return fmt.Errorf("%w: no legacy mosaics table", ErrSchema)
		}
		n, err = countLegacyRows(ctx, q, LegacyTable)
		return err
	})
	return n, err
}

// HasLegacySchema checks for the legacy table inside the transaction.
func (t *Tx) HasLegacySchema() (bool, error) {
	legacy, err := hasLegacySchema(t.ctx, t.tx)
	return legacy, wrapErr("has_legacy_schema", err)
}

// RenameLegacyTable moves the legacy mosaics table to legacy_mosaics.
func (t *Tx) RenameLegacyTable() error {
	_, err := t.tx.ExecContext(t.ctx, "ALTER TABLE "+LegacyTable+" RENAME TO "+LegacyMovedTable)
	return wrapErr("rename_legacy_table", err)
}

// CreateSchema creates every normalized table. It must run after
// RenameLegacyTable when a legacy table is present.
func (t *Tx) CreateSchema() error {
	if _, err := t.tx.ExecContext(t.ctx, baseSchema); err != nil {
		return wrapErr("create_schema", err)
	}
	_, err := t.tx.ExecContext(t.ctx, assetSchema)
	return wrapErr("create_schema", err)
}

// legacyOptionalColumns may be absent from older legacy tables; they read
// as NULL.
var legacyOptionalColumns = []string{"size", "density", "layout", "content_hash", "creation_date"}

// legacySelectList builds the column list for ReadLegacyMosaics from the
// columns legacy_mosaics actually has.
func legacySelectList(ctx context.Context, q querier) (string, error) {
	rows, err := q.QueryContext(ctx, "SELECT name FROM pragma_table_info('"+LegacyMovedTable+"')")
	if err != nil {
		return "", err
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return "", err
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	cols := []string{"id", "movie_file_path", "mosaic_file_path"}
	for _, c := range legacyOptionalColumns {
		if present[c] {
			cols = append(cols, c)
		} else {
			cols = append(cols, "NULL AS "+c)
		}
	}
	return strings.Join(cols, ", "), nil
}

// ReadLegacyMosaics returns every row of legacy_mosaics in id order.
// Missing optional columns read as empty values.
func (t *Tx) ReadLegacyMosaics() ([]LegacyMosaic, error) {
	const op = "read_legacy_mosaics"

	cols, err := legacySelectList(t.ctx, t.tx)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	rows, err := t.tx.QueryContext(t.ctx, "SELECT "+cols+" FROM "+LegacyMovedTable+" ORDER BY id")
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	var out []LegacyMosaic
	for rows.Next() {
		var (
			row                         LegacyMosaic
			moviePath, mosaicPath       sql.NullString
			size, density, layout, hash sql.NullString
			creationDate                sql.NullInt64
		)
		if err := rows.Scan(&row.ID, &moviePath, &mosaicPath, &size, &density, &layout, &hash, &creationDate); err != nil {
			return nil, wrapErr(op, fmt.Errorf("legacy row scan: %w", err))
		}
		row.MovieFilePath = moviePath.String
		row.MosaicFilePath = mosaicPath.String
		row.Size = size.String
		row.Density = density.String
		row.Layout = layout.String
		row.ContentHash = hash.String
		if creationDate.Valid {
			row.CreationDate = time.Unix(creationDate.Int64, 0)
		}
		out = append(out, row)
	}
	return out, wrapErr(op, rows.Err())
}

// CountLegacyMovedRows counts rows of legacy_mosaics inside the transaction.
func (t *Tx) CountLegacyMovedRows() (int, error) {
	n, err := countLegacyRows(t.ctx, t.tx, LegacyMovedTable)
	return n, wrapErr("count_legacy_rows", err)
}
