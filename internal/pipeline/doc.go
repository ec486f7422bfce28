// Package pipeline runs derived-asset batches.
//
// A batch renders one mosaic or preview per movie and records each asset
// against the batch and its source movie. In the default tolerant mode items
// are independent: a failed render is stored as a failed asset row and the
// batch still completes. In fail-fast mode the first failure cancels the
// remaining items, nothing is recorded and any files already written are
// removed. Cancelling the context stops new items from starting, keeps rows
// already committed and marks the batch failed.
package pipeline
