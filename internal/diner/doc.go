// Package diner is the philosopher side of the table.
//
// Ownership boundary:
// - the think/request/eat/release loop (Run)
// - polling retry backoff after Deny
// - the TCP session to a broker (Client, Session)
//
// A diner never sees fork state; it only reacts to broker replies.
package diner
