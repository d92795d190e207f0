// Package session owns the remote access credential and the
// authenticated/unauthenticated lifecycle shared by every consumer.
//
// Manager.Authenticate is single-flight: concurrent callers wait on the
// same metadata handshake and observe the same result. Revocation, local
// or external, clears the persisted credential, tears down the
// subscription channel registered with SetTeardown and emits
// EventUnauthenticated.
//
// The access token is only readable through Manager.AccessToken, and only
// while authenticated.
package session
