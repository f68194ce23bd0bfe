// Package config loads application settings from an optional YAML file and
// GENFLOW_-prefixed environment variables, validating the result before any
// component is constructed.
package config
