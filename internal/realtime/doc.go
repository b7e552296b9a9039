// Package realtime implements the connection and event-broadcast core of the
// portal: the per-user connection registry, the liveness monitor, the inbound
// message dispatcher, and the broadcast engine.
//
// Delivery is best-effort and fire-and-forget: there is no queueing, no retry,
// and no delivery confirmation. A recipient without an open connection simply
// does not receive the event.
package realtime
