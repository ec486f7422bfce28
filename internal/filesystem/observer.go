package filesystem

// Observer records filesystem retry metrics. The metrics package provides the
// implementation so that this package does not depend on it.
type Observer interface {
	// ObserveOperation records the total time spent on one retried operation.
	ObserveOperation(operation string, durationSeconds float64)
	ObserveRetryAttempt(operation string)
	ObserveRetrySuccess(operation string)
	ObserveRetryFailure(operation string)
}

// defaultObserver is nil until SetObserver is called; recording is skipped.
var defaultObserver Observer

// SetObserver sets the package-level metrics observer.
func SetObserver(o Observer) {
	defaultObserver = o
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, float64) {}
func (nopObserver) ObserveRetryAttempt(string)       {}
func (nopObserver) ObserveRetrySuccess(string)       {}
func (nopObserver) ObserveRetryFailure(string)       {}

func observe() Observer {
	if defaultObserver == nil {
		return nopObserver{}
	}
	return defaultObserver
}
