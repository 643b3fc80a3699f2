// Package config loads the daemon configuration from YAML.
//
// Parse starts from Default, so a file only needs to name what it changes.
// The result is validated before it is returned. Catalog indexes the
// configured services for the router and the application layer.
package config
