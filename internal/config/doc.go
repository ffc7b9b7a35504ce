// Package config provides configuration loading, validation, and hot
// reloading for the proxy. Configuration comes from an optional YAML
// file with AUTHGATE_* environment variables taking precedence.
package config
