// Package protocol owns the logical message contract between philosophers
// and the arbiter.
//
// Ownership boundary:
// - message kinds (request/release/grant/deny)
// - inbound envelope and outbound reply shapes
//
// Wire encoding lives in frame, tlv, schema and session.
package protocol
