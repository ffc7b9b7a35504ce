// Package proxy forwards authenticated requests to the upstream,
// sanitizes outbound headers, and rewrites selected response content so
// the backend's origin never leaks to the client.
package proxy
