// Package bus implements the in-process broadcast bus.
//
// A single actor goroutine owns the registration set and consumes typed
// commands from a buffered channel. Subscribe, Publish and unsubscribe are
// linearized by actor processing order, which also gives per-channel FIFO
// delivery. Slow subscribers are resolved by a configurable overflow
// policy and never block the publisher.
package bus
