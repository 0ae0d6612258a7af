// Package session binds one WebSocket connection to one bus subscription.
//
// Each session is a small state machine (Connecting, Active, Draining,
// Closed). Deliveries from the bus are serialized into outbound frames and
// handed to a dedicated connection writer; teardown unsubscribes exactly
// once regardless of which side failed first.
package session
