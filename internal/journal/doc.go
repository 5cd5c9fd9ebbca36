// Package journal records feed-health events in PostgreSQL.
//
// Every adapter error the manager forwards becomes one feed_errors row:
// venue, error kind, symbol, whether it came from the stream, and the
// message. Rows are buffered in a bounded ring and written in batches with
// pgx.Batch. Quotes are never written here.
package journal
