/*
Package throttle bounds how many heavy operations run at once.

Probing a file, listing a large directory and rendering an asset all
take a permit from a Controller first:

	err := ctrl.Do(ctx, func(ctx context.Context) error {
		return render(ctx, movie)
	})

Capacity starts at Config.InitialPermits and, once Start is called, is
re-evaluated every Config.Interval from a Sampler:

  - memory at or above MemoryCriticalPercent drops capacity to MinPermits
  - memory above MemoryHighPercent or CPU above CPUHighPercent removes one permit
  - memory and CPU both below target add one permit, up to MaxPermits

Memory is the larger of host usage (gopsutil) and the Go heap relative to
GOMEMLIMIT. ConfigureMemoryLimit derives GOMEMLIMIT from a container limit.

A caller whose context ends while waiting gets ErrAdmissionCancelled
wrapping the context's cause, including for deadlines. Folder joins in the
scanner never hold a permit, so recursive fan-out cannot starve the gate.
*/
package throttle
