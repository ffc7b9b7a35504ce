// Package middleware provides HTTP middleware for the proxy: request
// IDs, access logging, panic recovery, metrics, and login throttling.
package middleware
