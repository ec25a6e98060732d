// Package broker hosts one arbiter behind a TCP (optionally TLS) listener.
//
// Ownership boundary:
// - seat registration handshake and seat-to-connection binding
// - framing inbound Request/Release into the arbiter inbox
// - delivering Grant/Deny to the bound connection
// - the admin HTTP surface (health, readiness, table snapshot, metrics)
//
// The sender of every inbound message is the seat bound at registration;
// frames never carry it.
package broker
