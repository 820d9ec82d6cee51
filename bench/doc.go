// Package bench drives a chunkcache.Cache the way an interactive benchmark
// form does: it owns the cache through a lifecycle.Controller, rebuilds it
// whenever the chunk size or chunk limit changes, and times store, fetch,
// count, cleanup and clear operations against whichever cache is current.
//
// Operations never wait for a cache under construction. While the controller
// is not ready they fail immediately with an error matching
// lifecycle.ErrNotReady.
package bench
