// Package config loads and validates hub configuration from YAML.
//
// Config files support ${VAR} environment variable substitution, which
// is how credentials are expected to be supplied in deployment.
package config
