// Package auth stores Instagram web sessions for the CLI.
//
// A Manager tries the system keyring first, then an AES-GCM encrypted file
// in the user's config directory, and finally reads CITYSTORIES_SESSION_ID
// from the environment. `citystories auth login` writes through the
// manager and `citystories run` fills an empty instagram.session_id from it.
package auth
