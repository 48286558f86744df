// Package assetstudio drives the AssetStudio command-line exporter.
//
// The exporter is a black box: Client builds the argument list, runs the
// binary through an Executor with a timeout, and inventories whatever files it
// wrote. Grouping reports whether the export was laid out per source bundle or
// per asset type, since only the former can be attributed back to a bundle.
package assetstudio
