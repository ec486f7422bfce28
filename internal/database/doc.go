// Package database provides the SQLite registry store.
//
// It holds:
//   - Movies, deduplicated by content hash and then by file path
//   - The scanned library tree and the movies attached to each folder
//   - Mosaic and preview batches with the assets each batch produced
//   - Playlists and their ordered items
//   - Key/value metadata, including the legacy migration marker
//
// The database uses WAL mode, enforces foreign keys, and begins every
// transaction IMMEDIATE. Failures are returned as *StoreError values whose
// kind can be tested with errors.Is against ErrNotFound, ErrDuplicate,
// ErrForeignKey and ErrSchema.
//
// Multi-row writes go through WithTx. The legacy migration uses
// WithExclusiveTx, which blocks every other store operation while it runs.
package database
