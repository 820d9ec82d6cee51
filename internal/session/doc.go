// Package session persists the identity of a benchmark session: the cache
// key, the cache buster, the item counter and the last chosen chunk limit.
//
// The state is a small codec-encoded JSON file replaced atomically on every
// change, so a benchmark restarted later continues the same cache.
package session
