// Package instagram retrieves the first timeline page of public accounts
// from Instagram's web profile endpoint and normalizes it into
// models.PostRecord values.
//
// The response shape drifts without notice, so it is decoded level by
// level: a missing user or timeline yields an empty result and a malformed
// item is skipped on its own. Only transport failures, non-2xx statuses, a
// body that is not a JSON object and an explicit login demand are errors.
//
// Credentials are supplied by an Authenticator: SessionTokenAuth for an
// externally obtained session cookie, or LoginSessionAuth which logs in
// once per run with a username and password.
package instagram
