// Package catalog models catalog snapshots: loading them from JSON exports or
// the raw key,hash index, saving them deterministically, and persisting the
// previous/current pair used by the diff.
package catalog
