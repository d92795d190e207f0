// Package stream keeps the persistent subscription to the remote data tree.
//
// A Channel dials the remote stream endpoint over WebSocket with the
// session's Bearer credential and reads frames:
//
//	{"event":"put","path":"/","data":{...}}
//	{"event":"keep-alive"}
//	{"event":"auth_revoked"}
//	{"event":"error","message":"..."}
//
// Every put is merged into a local copy of the tree and the resulting
// Snapshot is handed to the Sink. The channel reconnects on transport
// failures, restarts itself on a fixed interval, and treats a revoked
// credential as terminal: the session is told and no reconnect follows.
//
// State machine:
//
//	Closed -> Connecting -> Open -> Reconnecting -> Connecting ...
//	                          \-> Closed (Close, auth revoked)
package stream
