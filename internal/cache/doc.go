// Package cache holds prefetched clip audio keyed by token. Entries are
// loaded in the background, become ready once decoded, and are evicted when
// a load fails so a later attempt starts fresh.
package cache
