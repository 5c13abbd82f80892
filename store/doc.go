// Package store is the thin key-value client every credential component depends on.
//
// [Client] names exactly the operations the lifecycle needs: set-with-ttl, get,
// get-and-delete, delete, shorten-ttl, add-to-set (with TTL floor), read-set and
// read-remaining-ttl. [Redis] implements it on top of go-redis.
//
// # Error contract
//
//   - A missing key is reported as [ErrNotFound], never as an empty value.
//   - Every transport, timeout, or server failure is wrapped with [ErrUnavailable].
//     Callers on validation paths must treat it as "indeterminate" and fail closed.
//
// # What this package must NOT do
//
//   - Know anything about credential kinds, encodings, or key layout semantics.
//   - Hold locks across I/O or retry silently.
package store
