package catalog

import (
	"encoding/json"
	"slices"

	"assetsync/internal/entityid"
)

// Record is one catalog entry. Identity is ID; every other field is payload.
type Record struct {
	ID          entityid.ID
	DisplayName string
	// Assets maps a category to the bundle-name templates the entry owns.
	Assets map[Category][]string
	// Extra holds fields this package does not interpret, re-emitted verbatim on save.
	Extra map[string]json.RawMessage
}

// AssetNames returns every asset name the record owns in canonical category order.
func (r Record) AssetNames() []string {
	var names []string
	for _, category := range r.sortedCategories() {
		names = append(names, r.Assets[category]...)
	}
	return names
}

func (r Record) sortedCategories() []Category {
	categories := make([]Category, 0, len(r.Assets))
	for category := range r.Assets {
		categories = append(categories, category)
	}
	slices.SortFunc(categories, CompareCategories)
	return categories
}

// SkippedRecord describes an entry dropped during loading because its id was malformed.
type SkippedRecord struct {
	Raw string
	Err error
}

// Snapshot is an immutable view of the catalog at one point in time.
type Snapshot struct {
	// Version is a content digest of the source document, used for bookkeeping only.
	Version string
	Skipped []SkippedRecord
	records map[entityid.ID]Record
}

// NewSnapshot builds a snapshot from records. Later records replace earlier
// ones with the same id.
func NewSnapshot(version string, records ...Record) *Snapshot {
	snap := &Snapshot{Version: version, records: make(map[entityid.ID]Record, len(records))}
	for _, record := range records {
		snap.records[record.ID] = record
	}
	return snap
}

// Len reports the number of records; a nil snapshot is empty.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// Has reports whether id is present.
func (s *Snapshot) Has(id entityid.ID) bool {
	if s == nil {
		return false
	}
	_, ok := s.records[id]
	return ok
}

// Get returns the record for id.
func (s *Snapshot) Get(id entityid.ID) (Record, bool) {
	if s == nil {
		return Record{}, false
	}
	record, ok := s.records[id]
	return record, ok
}

// IDs returns every id in ascending order.
func (s *Snapshot) IDs() []entityid.ID {
	if s == nil {
		return nil
	}
	ids := make([]entityid.ID, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, entityid.Compare)
	return ids
}

// Records returns every record in ascending id order.
func (s *Snapshot) Records() []Record {
	ids := s.IDs()
	records := make([]Record, 0, len(ids))
	for _, id := range ids {
		records = append(records, s.records[id])
	}
	return records
}
