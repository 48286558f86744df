// Package config loads, normalizes, and validates assetsync configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// ASSETSYNC_BASE_URL and ASSETSYNC_EXTRACTOR. The Config type centralizes every
// knob the CLI needs: work/output roots, the remote CDN, the extractor
// invocation, and the bundle-name templates.
//
// The CLI builds one Config and passes it explicitly; no other package reads
// configuration from the environment.
package config
