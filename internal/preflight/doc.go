// Package preflight provides readiness checks for the filesystem roots, the
// exporter binary, and the asset host that assetsync depends on.
//
// The runner uses the directory and extractor checks when it is constructed
// and refuses to start when one fails. The "assetsync status" command renders
// every result from RunAll, including advisory ones such as the exporter
// grouping warning.
package preflight
