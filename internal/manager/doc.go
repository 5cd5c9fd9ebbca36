// Package manager owns the set of venue adapters.
//
// The manager registers one adapter per venue, fans lifecycle and
// subscription calls out to all of them concurrently, and merges their
// quotes into a single stream throttled per (venue, symbol). Every adapter
// error is re-reported on the manager's error observers with its venue.
package manager
