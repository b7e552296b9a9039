// Package directory implements the external collaborator interfaces consumed
// by the realtime service: the Redis-backed session store shared with the
// portal, and the PostgreSQL-backed user and project directories. All of it
// is read-only from this service's point of view; the portal owns the data.
package directory
