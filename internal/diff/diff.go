// Package diff computes which catalog entries are new between two snapshots.
//
// Identity is the entity id alone: a record whose other fields changed is not
// reported.
package diff

import (
	"slices"

	"assetsync/internal/catalog"
	"assetsync/internal/entityid"
)

// Result lists the ids introduced by the current snapshot.
type Result struct {
	// Added is ascending and duplicate free.
	Added []entityid.ID
	// ConsideredTotal is the number of records in the current snapshot.
	ConsideredTotal int
}

// Compute returns the ids present in current and absent from previous. A nil
// previous snapshot is treated as empty. Neither input is modified.
func Compute(previous, current *catalog.Snapshot) Result {
	result := Result{ConsideredTotal: current.Len()}
	for _, id := range current.IDs() {
		if !previous.Has(id) {
			result.Added = append(result.Added, id)
		}
	}
	return result
}

// Empty reports whether nothing was added.
func (r Result) Empty() bool {
	return len(r.Added) == 0
}

// RawIDs returns the added ids as strings, ascending.
func (r Result) RawIDs() []string {
	ids := make([]string, 0, len(r.Added))
	for _, id := range r.Added {
		ids = append(ids, id.String())
	}
	return ids
}

// TargetNames returns the catalog asset names owned by the added ids, sorted
// and without duplicates.
func (r Result) TargetNames(current *catalog.Snapshot) []string {
	var names []string
	for _, id := range r.Added {
		record, ok := current.Get(id)
		if !ok {
			continue
		}
		names = append(names, record.AssetNames()...)
	}
	slices.Sort(names)
	return slices.Compact(names)
}
