package deps

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ExtractorNames are the executable names AssetStudio command-line builds ship
// under, tried in order when the configured binary cannot be found.
var ExtractorNames = []string{"AssetStudioModCLI", "AssetStudio.CLI", "AssetStudioCLI"}

// ResolveExtractor reports the exporter binary that will be executed. An
// explicit path is used as-is. A bare name is looked up on PATH, then each
// known alternative name is tried.
func ResolveExtractor(configured string) Status {
	status := Status{
		Name:        "Extractor",
		Command:     strings.TrimSpace(configured),
		Description: "Required to unpack asset bundles",
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}

	if strings.ContainsRune(status.Command, filepath.Separator) {
		info, err := os.Stat(status.Command)
		switch {
		case err != nil:
			status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		case !isExecutable(info):
			status.Detail = fmt.Sprintf("%q is not executable", status.Command)
		default:
			status.Available = true
		}
		return status
	}

	candidates := []string{status.Command}
	for _, name := range ExtractorNames {
		if !strings.EqualFold(name, status.Command) {
			candidates = append(candidates, name)
		}
	}
	requirements := make([]Requirement, 0, len(candidates))
	for _, name := range candidates {
		requirements = append(requirements, Requirement{
			Name:        status.Name,
			Command:     executableName(name),
			Description: status.Description,
		})
	}
	for _, found := range CheckBinaries(requirements) {
		if found.Available {
			status.Command = found.Command
			status.Available = true
			return status
		}
	}
	status.Detail = fmt.Sprintf("binary %q not found (also tried %s)", status.Command, strings.Join(candidates[1:], ", "))
	return status
}

func executableName(base string) string {
	if runtime.GOOS == "windows" && filepath.Ext(base) != ".exe" {
		return base + ".exe"
	}
	return base
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
