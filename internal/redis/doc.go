// Package redis provides the Redis-backed broadcast bus.
//
// Publishes go through Redis Pub/Sub so multiple relay instances share one
// logical message stream. A circuit breaker guards the publish path; an
// unreachable broker surfaces as domain.ErrBrokerUnavailable.
package redis
