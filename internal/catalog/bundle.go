package catalog

import (
	"fmt"
	"path/filepath"
	"strings"

	"assetsync/internal/services"
)

// CheckBundleName rejects names that are not a single plain path element.
// Bundle names become file and directory names under the work tree, so a
// separator or a ".." would escape it.
func CheckBundleName(name string) error {
	switch {
	case name == "" || name == "." || name == "..":
	case strings.ContainsAny(name, "/\\\x00"):
	case strings.Contains(name, ".."):
	case filepath.Base(name) != name:
	default:
		return nil
	}
	return services.Wrap(services.ErrValidation, "catalog", "check bundle name",
		fmt.Sprintf("%q is not a plain bundle name", name), nil)
}
