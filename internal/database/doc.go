// Package database opens the PostgreSQL pool used by the feed-health journal.
//
// Only health events are stored; quotes are never persisted.
package database
