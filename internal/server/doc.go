// Package server implements the request coordinator: the per-request
// logic that composes the sharded cache, the work executor, and the
// store into the GET/PUT/DELETE surface.
//
// # Request flow
//
//	GET:    cache probe ──hit──► reply
//	           │miss
//	           ▼
//	        executor ──► pool ──► table adapter ──► cache populate ──► reply
//
//	PUT:    executor ──► store upsert ──ok──► cache insert ──► reply
//	DELETE: executor ──► store delete ──rows>0──► cache remove ──► reply
//
// # Coherence
//
// The cache changes only after a successful store outcome:
//
//   - not-found reads are never cached (no negative caching)
//   - failed writes and deletes leave the cache untouched
//   - a delete that removed no row leaves the cache untouched
//
// # Error taxonomy
//
//	400  malformed key or missing parameter (no cache/store contact)
//	404  store has no row for the key
//	500  store error (driver message in the body)
//	503  resources exhausted within the request deadline, or shutdown
package server
