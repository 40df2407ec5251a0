// Package config provides the options of a download run and the loaders
// for its inputs: the YAML config file, PAGEFETCH_* environment variables,
// the site list and the proxy list.
package config
