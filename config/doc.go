// Package config loads swarmflow configuration with the precedence
// defaults, then YAML file, then environment variables. A poll-based
// watcher can reload the file at runtime for the fields that tolerate
// it.
package config
