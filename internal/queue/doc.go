// Package queue serializes playback tasks. Exactly one task runs at a time,
// in the order tasks were enqueued; the next task is promoted as soon as
// the running one reaches a terminal state.
package queue
