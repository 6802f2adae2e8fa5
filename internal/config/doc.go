// Package config loads the miniclaw console configuration with viper.
//
// Values are resolved in the order defaults, optional YAML file, MINICLAW_
// environment variables. Nested keys map to env names with "." replaced by
// "_", e.g. log.level becomes MINICLAW_LOG_LEVEL.
package config
