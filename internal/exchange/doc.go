// Package exchange implements the venue adapter.
//
// An Adapter pairs a venue Protocol (wire formats, symbol spelling, REST
// endpoints) with the shared machinery every venue needs:
//
//   - A connection.Supervisor that reconnects with jittered backoff and
//     resubscribes the whole subscription set after every reconnect
//   - Named ratelimit buckets in front of every REST call
//   - A poller.Poller that fetches each subscribed symbol over REST when the
//     stream has been quiet for longer than the freshness window
//   - A symbol catalog cached with a TTL
//
// Quotes and errors are delivered to observers registered with
// OnPriceUpdate and OnError. Errors are always *Error values.
package exchange
