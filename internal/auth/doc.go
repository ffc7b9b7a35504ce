// Package auth implements credential extraction and verification, the
// request classification gate, and the login lifecycle handlers.
package auth
