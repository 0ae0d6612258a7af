// Package app holds the submission gateway service.
//
// The service validates inbound submissions, builds the canonical message
// record, and publishes it to the broadcast bus. The created message is
// returned synchronously; subscribers (including the submitter itself, if
// subscribed) observe it asynchronously and reconcile by ID.
package app
