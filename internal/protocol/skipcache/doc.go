// Package skipcache holds message keys derived for messages that have not
// arrived yet, so that reordered traffic still decrypts.
//
// The cache is an arena: a slice kept in insertion order, bounded by entry
// count and by age. When a bound would be exceeded the oldest entries are
// evicted silently. Every entry is single-use; Take removes it.
//
// Each eviction leaves a tombstone for its exact (ratchet key, counter), so a
// late message whose key was evicted is reported as such. Any other counter
// already used is a replay.
//
// A Cache is plain data and is serialised with the session state. It is not
// safe for concurrent use.
package skipcache
