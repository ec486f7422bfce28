/*
Package filesystem wraps the filesystem calls made by the library scanner and
the renderers with retry logic for NFS stale file handle errors.

Libraries are commonly mounted over NFS. When the server side changes under a
client, calls fail with ESTALE (errno 116) even though a second attempt would
succeed. StatWithRetry, ReadDirWithRetry and OpenWithRetry retry those errors
with capped exponential backoff and return every other error immediately.

	entries, err := filesystem.ReadDirWithRetry(ctx, "/library/movies", filesystem.DefaultRetryConfig())

Backoff sleeps observe ctx, so a cancelled scan does not wait out the retries.

Metrics are reported through the Observer interface. The metrics package
provides the implementation; install it once at startup with SetObserver.
*/
package filesystem
