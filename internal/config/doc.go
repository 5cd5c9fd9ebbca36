// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// A venue listed under venues is enabled unless it sets enabled: false; an
// empty venues section enables every supported venue with its defaults.
package config
