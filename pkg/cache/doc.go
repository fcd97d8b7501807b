// Package cache holds the results of remote queries keyed by resource and parameters.
//
// A [Cache] sits between callers and the carpool API. [Cache.Query] returns a stored result when
// one exists and has not been invalidated, and otherwise runs the supplied fetch function. At most
// one fetch per key is outstanding at any time: callers that ask for a key while a fetch is in
// flight wait for that fetch instead of starting another.
//
// Writes go through [Cache.Mutate], which invalidates every entry whose [Key] starts with one of
// the supplied prefixes once the mutation succeeds. Invalidated entries keep their data, so that
// it can be shown while the next Query refetches it, but they are never returned as fresh.
//
// Errors are returned to the caller and never retried. An error that indicates the server
// rejected the session's token additionally triggers the handler registered with
// [Cache.OnUnauthorized], which lets the owner end the session.
//
// Cache contents may be saved with [Cache.Export] and restored with [Cache.Import]. Snapshots
// contain user data and should be protected with the same care as the session's tokens.
package cache
