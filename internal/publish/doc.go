// Package publish pushes the manager's throttled quote stream to Redis.
//
// Each quote is published as JSON on channel quotes:<venue>:<symbol> and
// cached under latest:<venue>:<symbol> with a TTL, so consumers can either
// subscribe or read the most recent top of book. Nothing is kept beyond the
// TTL.
package publish
