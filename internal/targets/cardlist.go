package targets

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"assetsync/internal/catalog"
	"assetsync/internal/entityid"
)

var ownerPattern = regexp.MustCompile(`_(\d{8})_`)

// bundle-name prefixes and the category they publish
var prefixCategories = []struct {
	prefix   string
	category catalog.Category
}{
	{"Card_", catalog.CategoryImage},
	{"Sound_", catalog.CategoryAudio},
	{"Character_Prefabs_", catalog.CategoryModel},
}

// CategoryForBundle derives a category from a bundle-name prefix.
func CategoryForBundle(bundle string) catalog.Category {
	for _, rule := range prefixCategories {
		if strings.HasPrefix(strings.ToLower(bundle), strings.ToLower(rule.prefix)) {
			return rule.category
		}
	}
	return catalog.CategoryUnclassified
}

// ParseCardList reads a card list: one bundle name per line, ignoring blank
// lines and lines starting with "#" or "//". Lines without an 8-digit owning
// id, or that are not plain bundle names, are returned as rejected. Repeated bundle names are dropped.
func ParseCardList(r io.Reader) (List, []string, error) {
	var (
		list     List
		rejected []string
		seen     = make(map[string]struct{})
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		match := ownerPattern.FindStringSubmatch(line)
		if match == nil || catalog.CheckBundleName(line) != nil {
			rejected = append(rejected, line)
			continue
		}
		owner, err := entityid.Parse(match[1])
		if err != nil {
			rejected = append(rejected, line)
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		list = append(list, Target{Bundle: line, Owner: owner, Category: CategoryForBundle(line)})
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read card list: %w", err)
	}
	return list, rejected, nil
}

// WriteCardList writes one bundle name per line in list order.
func WriteCardList(w io.Writer, list List) error {
	bw := bufio.NewWriter(w)
	for _, target := range list {
		if _, err := bw.WriteString(target.Bundle + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
