// Package domain defines the core domain types and contracts.
//
// This package holds the Message record and factory, the Bus and
// Subscription contracts, and the sentinel errors shared across the
// application. No implementation code beyond construction - interfaces
// stay on the consumer side to prevent circular imports.
package domain
