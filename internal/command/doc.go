// Package command validates and issues writes against the remote source.
//
// Gateway.Write rounds temperatures to half a degree, validates the value
// against the attribute schema (schema.json), makes sure the session is
// authenticated and PUTs {attr: value} to the device path. Every failure
// is an *Error whose Kind is one of rejected, network, unauthorized or
// precondition_failed.
package command
