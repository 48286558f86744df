package catalog

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"

	"assetsync/internal/entityid"
	"assetsync/internal/logging"
	"assetsync/internal/services"
)

// IndexEntry is one "key,hash" line of the published catalog index.
type IndexEntry struct {
	Key  string
	Hash string
}

// Index is the parsed catalog index in file order.
type Index struct {
	Entries []IndexEntry
}

// ParseIndex reads "key,hash" lines. Blank lines and lines without a comma are
// ignored; the first comma separates key from hash.
func ParseIndex(r io.Reader) (*Index, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	index := &Index{}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, hash, ok := strings.Cut(line, ",")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		index.Entries = append(index.Entries, IndexEntry{Key: key, Hash: strings.TrimSpace(hash)})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read catalog index: %w", err)
	}
	return index, nil
}

// Keys returns the index keys in file order.
func (ix *Index) Keys() []string {
	keys := make([]string, 0, len(ix.Entries))
	for _, entry := range ix.Entries {
		keys = append(keys, entry.Key)
	}
	return keys
}

// CompileIDPattern compiles an index id pattern. The pattern must carry exactly
// one named group, "id", and matches case-insensitively.
func CompileIDPattern(pattern string) (*regexp.Regexp, error) {
	if !strings.HasPrefix(pattern, "(?i)") {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "index", "compile id pattern", pattern, err)
	}
	if idGroup(re) < 0 {
		return nil, services.Wrap(services.ErrConfiguration, "index", "compile id pattern",
			fmt.Sprintf("%s must have exactly one named group \"id\"", pattern), nil)
	}
	return re, nil
}

func idGroup(re *regexp.Regexp) int {
	found := -1
	for i, name := range re.SubexpNames() {
		if name == "" {
			continue
		}
		if name != "id" || found >= 0 {
			return -1
		}
		found = i
	}
	return found
}

// FromIndex groups index keys into image records by the id captured from each
// key. Keys that do not match are ignored; keys whose captured id is malformed
// are listed in Snapshot.Skipped.
func FromIndex(index *Index, pattern *regexp.Regexp, opts Options) (*Snapshot, error) {
	group := idGroup(pattern)
	if group < 0 {
		return nil, services.Wrap(services.ErrConfiguration, "index", "group entries",
			"id pattern has no single named group \"id\"", nil)
	}

	digest := sha256.New()
	grouped := make(map[entityid.ID][]string)
	skipped := make(map[string]struct{})
	snap := &Snapshot{}
	unsafe := 0
	for _, entry := range index.Entries {
		fmt.Fprintf(digest, "%s,%s\n", entry.Key, entry.Hash)
		match := pattern.FindStringSubmatch(entry.Key)
		if match == nil {
			continue
		}
		if err := CheckBundleName(entry.Key); err != nil {
			unsafe++
			opts.logger().Debug("index key is not a plain bundle name", logging.String("key", entry.Key))
			continue
		}
		raw := match[group]
		id, err := entityid.Parse(raw)
		if err != nil {
			if _, seen := skipped[raw]; !seen {
				skipped[raw] = struct{}{}
				snap.Skipped = append(snap.Skipped, SkippedRecord{Raw: raw, Err: err})
				opts.logger().Debug("index key carries malformed id",
					logging.String("key", entry.Key),
					logging.String("raw_id", raw),
				)
			}
			continue
		}
		grouped[id] = append(grouped[id], entry.Key)
	}

	snap.Version = "sha256:" + hex.EncodeToString(digest.Sum(nil))
	snap.records = make(map[entityid.ID]Record, len(grouped))
	for id, keys := range grouped {
		slices.Sort(keys)
		keys = slices.Compact(keys)
		snap.records[id] = Record{ID: id, Assets: map[Category][]string{CategoryImage: keys}}
	}
	if unsafe > 0 {
		logging.WarnWithContext(opts.logger(), "index keys skipped for unsafe bundle names", "unsafe_bundle_name",
			logging.Int("skipped", unsafe),
			logging.String(logging.FieldErrorHint, "index keys must be bare bundle names without path separators"),
		)
	}
	if len(snap.Skipped) > 0 {
		logging.WarnWithContext(opts.logger(), "index keys skipped for malformed ids", "malformed_id",
			logging.Int("skipped", len(snap.Skipped)),
			logging.String(logging.FieldErrorHint, "tighten index.id_pattern if these keys are not entity assets"),
		)
	}
	return snap, nil
}
