// Package config defines the application's configuration structures and
// loading logic. Configuration is read from environment variables and an
// optional YAML file, then validated before use.
package config
