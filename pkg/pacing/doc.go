// Package pacing keeps the ingester polite towards the remote service.
//
// Every remote operation waits on one of three classes first: Metadata
// before profile or login requests, Asset before each download and Account
// before each tracked account after the first. Once the operation has
// finished the caller reports Done, and the next Wait of that class sleeps
// the full delay counted from that moment:
//
//	if err := pacer.Wait(ctx, pacing.Asset); err != nil {
//		return err
//	}
//	defer pacer.Done(pacing.Asset)
//
// Waiters of one class are served one at a time, so the pause also holds
// when several download workers share the Asset class. An optional
// requests-per-minute budget, a token bucket from golang.org/x/time/rate,
// applies to all remote calls together.
package pacing
