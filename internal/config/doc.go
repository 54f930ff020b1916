// Package config loads slot race configuration from YAML, .env files and
// the environment.
package config
