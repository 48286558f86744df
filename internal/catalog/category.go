package catalog

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Category is the coarse asset kind a bundle or exported file belongs to.
type Category string

const (
	CategoryImage        Category = "image"
	CategoryAudio        Category = "audio"
	CategoryModel        Category = "model"
	CategoryUnclassified Category = "unclassified"
)

// Categories lists the catalog categories in canonical order. Unclassified is
// an organizer-only bucket and is not part of the catalog.
var Categories = []Category{CategoryImage, CategoryAudio, CategoryModel}

var titleCaser = cases.Title(language.English)

// ParseCategory accepts a catalog category name, ignoring case and surrounding space.
func ParseCategory(raw string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(raw))); c {
	case CategoryImage, CategoryAudio, CategoryModel, CategoryUnclassified:
		return c, nil
	default:
		return "", fmt.Errorf("unknown asset category %q", raw)
	}
}

// Rank orders categories canonically: image < audio < model < unclassified.
// Unknown values sort last.
func (c Category) Rank() int {
	switch c {
	case CategoryImage:
		return 0
	case CategoryAudio:
		return 1
	case CategoryModel:
		return 2
	case CategoryUnclassified:
		return 3
	default:
		return 4
	}
}

// Label returns a display label such as "Image".
func (c Category) Label() string {
	return titleCaser.String(string(c))
}

func (c Category) String() string { return string(c) }

// CompareCategories orders categories by rank and then by name.
func CompareCategories(a, b Category) int {
	if ra, rb := a.Rank(), b.Rank(); ra != rb {
		return ra - rb
	}
	return strings.Compare(string(a), string(b))
}
