// Package retry re-runs transient failures with backoff.
//
// Only network failures and server errors are retried by default; an
// account whose metadata request is rate limited or rejected for auth is
// reported immediately instead of hammering the remote.
//
//	posts, err := retry.DoWithResult(ctx, &retry.Config{
//		MaxAttempts: 2,
//		Backoff:     retry.DefaultExponentialBackoff(),
//	}, func(ctx context.Context) ([]models.PostRecord, error) {
//		return client.FetchRecentPosts(ctx, handle, 6)
//	})
package retry
