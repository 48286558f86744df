// Package bust selects one preview image bundle per catalog entity.
//
// Unlike the diff path, bust extraction covers every id in a snapshot so the
// gallery can be rebuilt from scratch at any time.
package bust

import (
	"fmt"
	"regexp"
	"strings"

	"assetsync/internal/catalog"
	"assetsync/internal/entityid"
	"assetsync/internal/services"
	"assetsync/internal/targets"
)

// PatternMismatchError reports an unusable bust template or key pattern.
type PatternMismatchError struct {
	Field   string
	Pattern string
	Reason  string
}

func (e *PatternMismatchError) Error() string {
	return fmt.Sprintf("bust %s %q: %s", e.Field, e.Pattern, e.Reason)
}

func (e *PatternMismatchError) Is(target error) bool {
	return target == services.ErrConfiguration
}

// Extractor maps snapshot records to their preview bundle.
type Extractor struct {
	template targets.Template
	key      *regexp.Regexp
	group    int
}

// New validates the template (exactly one {id}, expanding to a plain bundle
// name) and the key pattern (exactly one named capture group, "id").
func New(template, keyPattern string) (*Extractor, error) {
	if n := strings.Count(template, targets.PlaceholderID); n != 1 {
		return nil, &PatternMismatchError{
			Field:   "template",
			Pattern: template,
			Reason:  fmt.Sprintf("expected exactly one %s placeholder, found %d", targets.PlaceholderID, n),
		}
	}
	if catalog.CheckBundleName(strings.ReplaceAll(template, targets.PlaceholderID, "00000000")) != nil {
		return nil, &PatternMismatchError{
			Field:   "template",
			Pattern: template,
			Reason:  "expands to a name with a path separator or \"..\"",
		}
	}
	key, err := regexp.Compile(keyPattern)
	if err != nil {
		return nil, &PatternMismatchError{Field: "key_regex", Pattern: keyPattern, Reason: err.Error()}
	}
	group := -1
	named := 0
	for i, name := range key.SubexpNames() {
		if name == "" {
			continue
		}
		named++
		if name == "id" {
			group = i
		}
	}
	if named != 1 || group < 0 {
		return nil, &PatternMismatchError{
			Field:   "key_regex",
			Pattern: keyPattern,
			Reason:  fmt.Sprintf("expected exactly one named capture group \"id\", found %d named groups", named),
		}
	}
	return &Extractor{template: targets.Template(template), key: key, group: group}, nil
}

// Match returns the id captured from name, if the key pattern matches.
func (e *Extractor) Match(name string) (string, bool) {
	match := e.key.FindStringSubmatch(name)
	if match == nil {
		return "", false
	}
	return match[e.group], true
}

// Extract returns one image target per id in snap, ascending by id. A record
// image asset whose captured id equals the record id wins; otherwise the
// template is expanded.
func (e *Extractor) Extract(snap *catalog.Snapshot) targets.List {
	ids := snap.IDs()
	list := make(targets.List, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		bundle := e.bundleFor(snap, id)
		if _, dup := seen[bundle]; dup {
			continue
		}
		seen[bundle] = struct{}{}
		list = append(list, targets.Target{Bundle: bundle, Owner: id, Category: catalog.CategoryImage})
	}
	return list
}

func (e *Extractor) bundleFor(snap *catalog.Snapshot, id entityid.ID) string {
	record, _ := snap.Get(id)
	for _, name := range record.Assets[catalog.CategoryImage] {
		if captured, ok := e.Match(name); ok && captured == id.String() {
			return name
		}
	}
	return e.template.Expand(id, 1)[0]
}

// ContainerPattern is the anchored extractor filter that exports only the
// preview asset of bundle.
func ContainerPattern(bundle string) string {
	return "^" + regexp.QuoteMeta(bundle) + "$"
}
