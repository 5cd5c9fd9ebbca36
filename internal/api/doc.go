// Package api provides the REST transport shared by the venue adapters.
//
// The client speaks JSON over HTTP against one venue base URL:
//   - 5xx responses are retried with jittered exponential backoff
//   - 429 responses surface immediately as *APIError with RetryAfter set
//   - Undecodable bodies wrap ErrDecode
package api
