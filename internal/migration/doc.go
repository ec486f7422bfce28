// Package migration converts a legacy flat mosaics table into the
// normalized registry schema.
//
// The legacy layout stored one row per mosaic with the movie's file path
// inline. MigrateToNewSchema moves that table aside as legacy_mosaics,
// creates the normalized tables, and carries every legacy row over as a
// movie plus a mosaic owned by one synthetic, already-completed batch. The
// whole conversion is a single transaction: any invalid row or a count
// mismatch at the end leaves the database exactly as it was.
//
// A file lock next to the database keeps two processes from migrating the
// same store at once; the store's exclusive lock keeps this process's other
// operations out for the duration.
package migration
