package catalog_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"assetsync/internal/catalog"
	"assetsync/internal/entityid"
	"assetsync/internal/services"
)

func load(t *testing.T, doc string) *catalog.Snapshot {
	t.Helper()
	snap, err := catalog.Load(strings.NewReader(doc), catalog.Options{})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	return snap
}

func TestLoadArrayAndObjectShapesAgree(t *testing.T) {
	array := load(t, `[
		{"id": "20413550", "display_name": "Arthur", "assets": {"image": "Card_1_bust_card_20413550_1_png"}},
		{"id": 10100010, "assets": {"audio": ["a", "b"]}}
	]`)
	object := load(t, `{
		"20413550": {"display_name": "Arthur", "assets": {"image": ["Card_1_bust_card_20413550_1_png"]}},
		"10100010": {"id": "10100010", "assets": {"audio": ["a", "b"]}}
	}`)

	for _, snap := range []*catalog.Snapshot{array, object} {
		if snap.Len() != 2 {
			t.Fatalf("expected 2 records, got %d", snap.Len())
		}
		ids := snap.IDs()
		if ids[0].String() != "10100010" || ids[1].String() != "20413550" {
			t.Fatalf("unexpected id order: %v", ids)
		}
		record, ok := snap.Get(entityid.MustParse("20413550"))
		if !ok || record.DisplayName != "Arthur" {
			t.Fatalf("unexpected record: %+v", record)
		}
		if got := record.Assets[catalog.CategoryImage]; len(got) != 1 || got[0] != "Card_1_bust_card_20413550_1_png" {
			t.Fatalf("unexpected image assets: %v", got)
		}
	}
}

func TestLoadRejectsStructuralErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"not json", `not json`, "not a JSON document"},
		{"scalar top level", `"20413550"`, "top level"},
		{"missing id", `[{"display_name": "x"}]`, "missing id"},
		{"duplicate in array", `[{"id": "20413550"}, {"id": "20413550"}]`, "duplicate id"},
		{"duplicate key", `{"20413550": {}, "20413550": {}}`, "duplicate id"},
		{"key mismatch", `{"20413550": {"id": "20413551"}}`, "does not match"},
		{"record not object", `[1]`, "must be an object"},
		{"bad assets", `[{"id": "20413550", "assets": {"image": 5}}]`, "invalid assets"},
		{"asset outside work tree", `[{"id": "20413550", "assets": {"image": "../x"}}]`, "not a plain bundle name"},
		{"asset with separator", `[{"id": "20413550", "assets": {"image": ["ok", "a/b"]}}]`, "not a plain bundle name"},
		{"trailing data", `[] []`, "trailing data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.Load(strings.NewReader(tt.doc), catalog.Options{Source: "test.json"})
			if err == nil {
				t.Fatalf("expected parse error")
			}
			var parseErr *catalog.ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected *ParseError, got %T: %v", err, err)
			}
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation marker on %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadSkipsMalformedIDs(t *testing.T) {
	snap := load(t, `[{"id": "2041355"}, {"id": "20413550"}, {"id": "2041355X"}]`)
	if snap.Len() != 1 {
		t.Fatalf("expected one valid record, got %d", snap.Len())
	}
	if len(snap.Skipped) != 2 {
		t.Fatalf("expected two skipped records, got %+v", snap.Skipped)
	}
	var malformed *entityid.MalformedIDError
	if !errors.As(snap.Skipped[0].Err, &malformed) {
		t.Fatalf("expected MalformedIDError, got %T", snap.Skipped[0].Err)
	}
}

func TestLoadNormalizesDisplayName(t *testing.T) {
	snap := load(t, `[{"id": "20413550", "display_name": "Cafe\u0301"}]`)
	record, _ := snap.Get(entityid.MustParse("20413550"))
	if record.DisplayName != "Caf\u00e9" {
		t.Fatalf("expected NFC display name, got %q", record.DisplayName)
	}
}

func TestSaveIsDeterministicAndPreservesUnknownFields(t *testing.T) {
	doc := `{
		"20413550": {"rarity": 5, "tags": ["a", "b"], "assets": {"model": "m", "image": ["i"]}},
		"10100010": {"display_name": "Bea"}
	}`
	snap := load(t, doc)

	var first, second bytes.Buffer
	if err := catalog.Save(&first, snap); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if err := catalog.Save(&second, load(t, doc)); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if first.String() != second.String() {
		t.Fatalf("Save output differs between identical snapshots")
	}
	out := first.String()
	if strings.Index(out, "10100010") > strings.Index(out, "20413550") {
		t.Fatalf("expected records sorted by id:\n%s", out)
	}

	reloaded := load(t, out)
	record, ok := reloaded.Get(entityid.MustParse("20413550"))
	if !ok {
		t.Fatalf("record lost on round trip")
	}
	if string(record.Extra["rarity"]) != "5" {
		t.Fatalf("expected rarity preserved, got %q", record.Extra["rarity"])
	}
	if _, ok := record.Extra["tags"]; !ok {
		t.Fatalf("expected tags preserved, got %v", record.Extra)
	}
	if names := record.AssetNames(); len(names) != 2 || names[0] != "i" || names[1] != "m" {
		t.Fatalf("unexpected asset names: %v", names)
	}

	var third bytes.Buffer
	if err := catalog.Save(&third, reloaded); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if third.String() != out {
		t.Fatalf("save/load/save is not stable:\n%s\n---\n%s", out, third.String())
	}
}

func TestVersionIsContentDigest(t *testing.T) {
	a := load(t, `[{"id": "20413550"}]`)
	b := load(t, `[{"id": "20413550"}]`)
	c := load(t, `[{"id": "20413551"}]`)
	if a.Version == "" || a.Version != b.Version {
		t.Fatalf("expected equal versions, got %q and %q", a.Version, b.Version)
	}
	if a.Version == c.Version {
		t.Fatalf("expected different versions for different content")
	}
}
