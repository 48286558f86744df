// Package targets expands catalog records into the ordered list of remote
// bundle names a run must fetch.
package targets

import (
	"fmt"
	"slices"
	"strings"

	"assetsync/internal/catalog"
	"assetsync/internal/config"
	"assetsync/internal/entityid"
	"assetsync/internal/services"
)

// Placeholders recognised in bundle-name templates.
const (
	PlaceholderID       = "{id}"
	PlaceholderSequence = "{seq}"
)

// Target is one remote bundle attributed to an entity and category.
type Target struct {
	Bundle   string
	Owner    entityid.ID
	Category catalog.Category
}

// List is an ordered target list with no repeated bundle names.
type List []Target

// Bundles returns the bundle names in list order.
func (l List) Bundles() []string {
	names := make([]string, 0, len(l))
	for _, target := range l {
		names = append(names, target.Bundle)
	}
	return names
}

// Owners returns the distinct owning ids in list order.
func (l List) Owners() []entityid.ID {
	var owners []entityid.ID
	seen := make(map[entityid.ID]struct{})
	for _, target := range l {
		if _, ok := seen[target.Owner]; ok {
			continue
		}
		seen[target.Owner] = struct{}{}
		owners = append(owners, target.Owner)
	}
	return owners
}

// UnknownIDError reports requested ids missing from the snapshot.
type UnknownIDError struct {
	IDs []entityid.ID
}

func (e *UnknownIDError) Error() string {
	raw := make([]string, 0, len(e.IDs))
	for _, id := range e.IDs {
		raw = append(raw, id.String())
	}
	return fmt.Sprintf("ids not present in snapshot: %s", strings.Join(raw, ", "))
}

// Is marks unknown ids as a configuration problem: the caller asked for data
// the catalog does not have.
func (e *UnknownIDError) Is(target error) bool {
	return target == services.ErrConfiguration
}

// Template is a bundle-name format containing {id} and optionally {seq}.
type Template string

// Expand substitutes id and, when the template carries {seq}, emits one name
// per sequence number 00..count-1. A count below one yields a single "00".
func (t Template) Expand(id entityid.ID, count int) []string {
	base := strings.ReplaceAll(string(t), PlaceholderID, id.String())
	if !strings.Contains(base, PlaceholderSequence) {
		return []string{base}
	}
	if count < 1 {
		count = 1
	}
	names := make([]string, 0, count)
	for seq := range count {
		names = append(names, strings.ReplaceAll(base, PlaceholderSequence, fmt.Sprintf("%02d", seq)))
	}
	return names
}

// Builder expands snapshot records into targets.
type Builder struct {
	// Defaults are used for a category when a record lists no assets for it,
	// or always when ForceDefaults is set.
	Defaults      map[catalog.Category][]Template
	SequenceCount int
	ForceDefaults bool
}

// NewBuilder returns a builder configured from the targets section.
func NewBuilder(cfg config.Targets) Builder {
	toTemplates := func(values []string) []Template {
		out := make([]Template, 0, len(values))
		for _, value := range values {
			out = append(out, Template(value))
		}
		return out
	}
	return Builder{
		Defaults: map[catalog.Category][]Template{
			catalog.CategoryImage: toTemplates(cfg.Image),
			catalog.CategoryAudio: toTemplates(cfg.Audio),
			catalog.CategoryModel: toTemplates(cfg.Model),
		},
		SequenceCount: cfg.AudioSequence,
		ForceDefaults: cfg.ForceDefaults,
	}
}

// Categories converts configured category names, keeping only known ones.
func Categories(names []string) []catalog.Category {
	categories := make([]catalog.Category, 0, len(names))
	for _, name := range names {
		if category, err := catalog.ParseCategory(name); err == nil && category != catalog.CategoryUnclassified {
			categories = append(categories, category)
		}
	}
	return categories
}

// Build expands the requested categories for every requested id. Targets are
// ordered by id, then category, then template expansion order, and no bundle
// name appears twice. Every id must exist in snap, and every expanded name
// must be a plain bundle name.
func (b Builder) Build(snap *catalog.Snapshot, ids []entityid.ID, categories []catalog.Category) (List, error) {
	ids = slices.Clone(ids)
	slices.SortFunc(ids, entityid.Compare)
	ids = slices.Compact(ids)

	categories = slices.Clone(categories)
	slices.SortFunc(categories, catalog.CompareCategories)
	categories = slices.Compact(categories)

	var missing []entityid.ID
	for _, id := range ids {
		if !snap.Has(id) {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &UnknownIDError{IDs: missing}
	}

	var list List
	seen := make(map[string]struct{})
	for _, id := range ids {
		record, _ := snap.Get(id)
		for _, category := range categories {
			for _, template := range b.templatesFor(record, category) {
				for _, name := range template.Expand(id, b.SequenceCount) {
					if _, dup := seen[name]; dup {
						continue
					}
					if err := catalog.CheckBundleName(name); err != nil {
						return nil, fmt.Errorf("expand %s for %s: %w", category, id, err)
					}
					seen[name] = struct{}{}
					list = append(list, Target{Bundle: name, Owner: id, Category: category})
				}
			}
		}
	}
	return list, nil
}

func (b Builder) templatesFor(record catalog.Record, category catalog.Category) []Template {
	own := record.Assets[category]
	templates := make([]Template, 0, len(own)+len(b.Defaults[category]))
	for _, name := range own {
		templates = append(templates, Template(name))
	}
	if len(own) == 0 || b.ForceDefaults {
		templates = append(templates, b.Defaults[category]...)
	}
	return templates
}
