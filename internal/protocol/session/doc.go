// Package session owns philosopher<->broker transport helpers.
//
// Ownership boundary:
// - seat registration control messages
// - request/release/grant/deny frame encode and decode
// - transport timeouts, tls policy and reconnect backoff
package session
