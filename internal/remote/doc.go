// Package remote talks to the remote home-automation cloud over HTTPS.
//
// It covers four round trips:
//   - REST GET/PUT of any path below the API root (Client.Get, Client.Put)
//   - the metadata handshake used to verify a credential (Client.Metadata)
//   - credential revocation (Client.Revoke)
//   - the OAuth2 authorization-code exchange (Authorizer)
//
// Every request carries the access token as a Bearer header. The API
// answers writes with 307 redirects to a regional host; the client
// follows them and keeps the Authorization header.
//
// Errors are either *StatusError (the server answered with a non-2xx
// status) or wrap ErrTransport (the request never got an answer).
package remote
