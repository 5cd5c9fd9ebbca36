// Package poller implements the REST fallback poller.
//
// The poller:
//   - Runs one loop per subscribed symbol on a per-venue interval (15-30s)
//   - Skips a tick when the stream delivered the symbol within the freshness window
//   - Bounds concurrent REST requests with a weighted semaphore
//   - Delivers through the adapter, so fallback quotes carry source="rest"
package poller
