// Package arbiter owns every grant and release decision for one table.
//
// Ownership boundary:
// - the waiting set and optional fairness tickets
// - all-or-nothing fork acquisition on Request
// - neighbour wake-up on Release (left, then right)
// - strict/lenient violation policy for the Run loop
//
// An Arbiter is single-writer: Handle, Request, Release, Snapshot and Verify
// must only be called from the goroutine that owns it. Latest is the one
// accessor safe to call from elsewhere.
package arbiter
