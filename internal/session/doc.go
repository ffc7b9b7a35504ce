// Package session manages server-side sessions keyed by opaque tokens
// carried in a client cookie. Sessions use a sliding expiration window:
// every touch extends the deadline from now, so activity rather than
// login time determines lifetime.
package session
