package bust_test

import (
	"errors"
	"regexp"
	"slices"
	"testing"

	"assetsync/internal/bust"
	"assetsync/internal/catalog"
	"assetsync/internal/config"
	"assetsync/internal/entityid"
	"assetsync/internal/services"
)

func TestNewValidatesPatterns(t *testing.T) {
	tests := []struct {
		name     string
		template string
		key      string
		field    string
	}{
		{"no placeholder", "Card_1_bust_png", `(?P<id>\d{8})`, "template"},
		{"two placeholders", "Card_{id}_{id}", `(?P<id>\d{8})`, "template"},
		{"template with separator", "x/{id}", `(?P<id>\d{8})`, "template"},
		{"template with parent", "../Card_{id}", `(?P<id>\d{8})`, "template"},
		{"unnamed group", "Card_{id}", `(\d{8})`, "key_regex"},
		{"wrong group name", "Card_{id}", `(?P<card>\d{8})`, "key_regex"},
		{"extra named group", "Card_{id}", `(?P<id>\d{8})_(?P<seq>\d)`, "key_regex"},
		{"invalid regex", "Card_{id}", `(?P<id>\d{8}`, "key_regex"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bust.New(tt.template, tt.key)
			var mismatch *bust.PatternMismatchError
			if !errors.As(err, &mismatch) {
				t.Fatalf("expected PatternMismatchError, got %v", err)
			}
			if mismatch.Field != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, mismatch.Field)
			}
			if !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected configuration marker")
			}
		})
	}

	defaults := config.Default().Bust
	if _, err := bust.New(defaults.Template, defaults.KeyRegex); err != nil {
		t.Fatalf("default bust settings rejected: %v", err)
	}
}

func TestExtractCoversEveryIDWithOneImage(t *testing.T) {
	defaults := config.Default().Bust
	extractor, err := bust.New(defaults.Template, defaults.KeyRegex)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	snap := catalog.NewSnapshot("",
		catalog.Record{
			ID: entityid.MustParse("20413550"),
			Assets: map[catalog.Category][]string{catalog.CategoryImage: {
				"Card_0_icon_card_20413550_0_png",
				"Card_1_bust_card_99999999_1_png",
				"Card_1_bust_card_20413550_1_png",
			}},
		},
		catalog.Record{ID: entityid.MustParse("10100010")},
	)

	list := extractor.Extract(snap)
	want := []string{"Card_1_bust_card_10100010_1_png", "Card_1_bust_card_20413550_1_png"}
	if got := list.Bundles(); !slices.Equal(got, want) {
		t.Fatalf("unexpected bust targets: got %v want %v", got, want)
	}
	for _, target := range list {
		if target.Category != catalog.CategoryImage {
			t.Fatalf("expected image category, got %s", target.Category)
		}
	}
}

func TestContainerPatternIsAnchoredLiteral(t *testing.T) {
	pattern := bust.ContainerPattern("Card_1.bust")
	re := regexp.MustCompile(pattern)
	if !re.MatchString("Card_1.bust") {
		t.Fatalf("pattern %q does not match its bundle", pattern)
	}
	if re.MatchString("Card_1xbust") || re.MatchString("xCard_1.bust") {
		t.Fatalf("pattern %q is not an anchored literal", pattern)
	}
}
