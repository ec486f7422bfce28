package metrics

// InitializeMetrics pre-populates the expected label combinations so that
// every series is exported from the first Prometheus scrape.
func InitializeMetrics() {
	for _, outcome := range []string{"commit", "rollback"} {
		DBTransactionDuration.WithLabelValues(outcome)
	}

	for _, kind := range []string{"unique_violation", "foreign_key_violation", "not_null_violation"} {
		DBConstraintViolations.WithLabelValues(kind)
	}

	for _, outcome := range []string{"completed", "cancelled", "failed", "cached"} {
		ScansTotal.WithLabelValues(outcome)
	}

	for _, result := range []string{"folder", "discovered", "registered", "deduplicated", "skipped", "error"} {
		ScanEntriesTotal.WithLabelValues(result)
	}

	for _, kind := range []string{"mosaic", "preview"} {
		for _, status := range []string{"completed", "failed"} {
			BatchesTotal.WithLabelValues(kind, status)
		}
		for _, result := range []string{"completed", "failed", "skipped"} {
			BatchItemsTotal.WithLabelValues(kind, result)
		}
		for _, phase := range []string{"extract", "compose", "encode", "total"} {
			RenderDuration.WithLabelValues(kind, phase)
		}
		for _, reason := range []string{"timeout", "ffmpeg", "source_missing", "unsupported", "other"} {
			RenderErrors.WithLabelValues(kind, reason)
		}
		BatchesRunning.WithLabelValues(kind)
		BatchDuration.WithLabelValues(kind)
	}

	for _, outcome := range []string{"completed", "rolled_back", "rejected"} {
		MigrationRunsTotal.WithLabelValues(outcome)
	}

	for _, typ := range []string{"scan", "batch"} {
		for _, state := range []string{"completed", "failed", "cancelled"} {
			JobsTotal.WithLabelValues(typ, state)
		}
		JobsRunning.WithLabelValues(typ)
	}

	for _, direction := range []string{"up", "down", "floor"} {
		ThrottleAdjustments.WithLabelValues(direction)
	}

	for _, op := range []string{"stat", "readdir", "open"} {
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetrySuccess.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
		FilesystemOperationDuration.WithLabelValues(op)
	}
}
