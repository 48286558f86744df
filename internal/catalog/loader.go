package catalog

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	"assetsync/internal/entityid"
	"assetsync/internal/logging"
	"assetsync/internal/services"
)

const (
	fieldID          = "id"
	fieldDisplayName = "display_name"
	fieldAssets      = "assets"
)

// ParseError reports a structurally invalid snapshot document.
type ParseError struct {
	Source string
	// Record is the array index or object key of the offending entry, empty for document-level errors.
	Record string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("parse snapshot")
	if e.Source != "" {
		b.WriteString(" ")
		b.WriteString(e.Source)
	}
	if e.Record != "" {
		b.WriteString(": record ")
		b.WriteString(e.Record)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is lets callers classify parse failures as validation errors.
func (e *ParseError) Is(target error) bool {
	return target == services.ErrValidation
}

// Options tunes snapshot loading.
type Options struct {
	Logger *slog.Logger
	// Source names the document in errors and logs, typically its path.
	Source string
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return logging.NewNop()
	}
	return o.Logger
}

// Load decodes a snapshot document. Both a JSON array of records and a JSON
// object keyed by raw id are accepted. Records with malformed ids are skipped
// and listed in Snapshot.Skipped; duplicate or missing ids fail the load.
func Load(r io.Reader, opts Options) (*Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	sum := sha256.Sum256(data)
	snap := &Snapshot{
		Version: "sha256:" + hex.EncodeToString(sum[:]),
		records: make(map[entityid.ID]Record),
	}
	p := &parser{opts: opts, snap: snap}
	if err := p.parse(data); err != nil {
		return nil, err
	}
	return snap, nil
}

// LoadFile opens path and loads it as a snapshot. The file is never modified.
func LoadFile(path string, opts Options) (*Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer file.Close()
	if opts.Source == "" {
		opts.Source = path
	}
	return Load(file, opts)
}

type parser struct {
	opts Options
	snap *Snapshot
}

func (p *parser) fail(record, reason string, err error) error {
	return &ParseError{Source: p.opts.Source, Record: record, Reason: reason, Err: err}
}

func (p *parser) parse(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return p.fail("", "not a JSON document", err)
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return p.fail("", "top level must be an array or object", nil)
	}
	switch delim {
	case '[':
		err = p.parseArray(dec)
	case '{':
		err = p.parseObject(dec)
	default:
		err = p.fail("", "top level must be an array or object", nil)
	}
	if err != nil {
		return err
	}
	if _, err := dec.Token(); err != nil {
		return p.fail("", "unterminated document", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return p.fail("", "trailing data after document", err)
	}
	return nil
}

func (p *parser) parseArray(dec *json.Decoder) error {
	for index := 0; dec.More(); index++ {
		label := fmt.Sprintf("#%d", index)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return p.fail(label, "invalid JSON", err)
		}
		if err := p.addRecord(label, "", raw); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) parseObject(dec *json.Decoder) error {
	seen := make(map[string]struct{})
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return p.fail("", "invalid JSON", err)
		}
		key, _ := tok.(string)
		if _, dup := seen[key]; dup {
			return p.fail(key, "duplicate id", nil)
		}
		seen[key] = struct{}{}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return p.fail(key, "invalid JSON", err)
		}
		if err := p.addRecord(key, key, raw); err != nil {
			return err
		}
	}
	return nil
}

// addRecord decodes one record. key is the mapping key in object form, empty in array form.
func (p *parser) addRecord(label, key string, raw json.RawMessage) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return p.fail(label, "record must be an object", err)
	}

	rawID, hasID, err := decodeID(fields[fieldID])
	if err != nil {
		return p.fail(label, "id must be a string or number", err)
	}
	switch {
	case !hasID && key == "":
		return p.fail(label, "missing id", nil)
	case !hasID:
		rawID = key
	case key != "" && strings.TrimSpace(rawID) != strings.TrimSpace(key):
		return p.fail(label, fmt.Sprintf("record id %q does not match key %q", rawID, key), nil)
	}

	id, err := entityid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		p.snap.Skipped = append(p.snap.Skipped, SkippedRecord{Raw: rawID, Err: err})
		logging.WarnWithContext(p.opts.logger(), "skipping catalog record with malformed id", "malformed_id",
			logging.String("source", p.opts.Source),
			logging.String("raw_id", rawID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the upstream export for this entry"),
			logging.String(logging.FieldImpact, "entry is excluded from diff and targets"),
		)
		return nil
	}
	if _, dup := p.snap.records[id]; dup {
		return p.fail(label, fmt.Sprintf("duplicate id %s", id), nil)
	}

	record := Record{ID: id}
	if value, ok := fields[fieldDisplayName]; ok && !isNull(value) {
		var name string
		if err := json.Unmarshal(value, &name); err != nil {
			return p.fail(label, "display_name must be a string", err)
		}
		record.DisplayName = norm.NFC.String(name)
	}
	if value, ok := fields[fieldAssets]; ok && !isNull(value) {
		assets, err := decodeAssets(value)
		if err != nil {
			return p.fail(label, "invalid assets", err)
		}
		record.Assets = assets
	}
	for name, value := range fields {
		switch name {
		case fieldID, fieldDisplayName, fieldAssets:
			continue
		}
		if record.Extra == nil {
			record.Extra = make(map[string]json.RawMessage)
		}
		record.Extra[name] = value
	}
	p.snap.records[id] = record
	return nil
}

func decodeID(raw json.RawMessage) (string, bool, error) {
	if len(raw) == 0 || isNull(raw) {
		return "", false, nil
	}
	var value any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		return "", false, err
	}
	switch v := value.(type) {
	case string:
		return v, true, nil
	case json.Number:
		return v.String(), true, nil
	default:
		return "", false, errors.New("unsupported id type")
	}
}

// decodeAssets accepts {category: name} or {category: [names...]}.
func decodeAssets(raw json.RawMessage) (map[Category][]string, error) {
	var byCategory map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byCategory); err != nil {
		return nil, err
	}
	assets := make(map[Category][]string, len(byCategory))
	for name, value := range byCategory {
		category := Category(strings.ToLower(strings.TrimSpace(name)))
		var many []string
		var single string
		if err := json.Unmarshal(value, &single); err == nil {
			many = []string{single}
		} else if err := json.Unmarshal(value, &many); err != nil {
			return nil, fmt.Errorf("category %q: expected a string or list of strings", name)
		}
		for _, entry := range many {
			if entry = strings.TrimSpace(entry); entry == "" {
				continue
			}
			if err := CheckBundleName(entry); err != nil {
				return nil, fmt.Errorf("category %q: %w", name, err)
			}
			assets[category] = append(assets[category], entry)
		}
	}
	return assets, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Save writes snap as a JSON array sorted by id. The encoding is deterministic
// for a given snapshot.
func Save(w io.Writer, snap *Snapshot) error {
	documents := make([]map[string]any, 0, snap.Len())
	for _, record := range snap.Records() {
		doc := make(map[string]any, len(record.Extra)+3)
		for name, value := range record.Extra {
			doc[name] = value
		}
		doc[fieldID] = record.ID.String()
		if record.DisplayName != "" {
			doc[fieldDisplayName] = record.DisplayName
		}
		if len(record.Assets) > 0 {
			assets := make(map[string][]string, len(record.Assets))
			for category, names := range record.Assets {
				assets[string(category)] = slices.Clone(names)
			}
			doc[fieldAssets] = assets
		}
		documents = append(documents, doc)
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(documents); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}
