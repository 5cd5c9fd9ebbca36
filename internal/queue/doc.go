// Package queue provides the bounded buffer that sits between the manager's
// callbacks and the slow sinks (journal, publisher).
//
// Callbacks run on adapter read loops and must never block, so Send always
// returns immediately. The ring doubles at 70% full until it reaches its
// maximum, then overwrites the oldest item and counts the drop.
package queue
