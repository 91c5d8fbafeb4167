// Package plugins discovers installed plugins and their dependency manifests
// under the plugins directory.
package plugins

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ManifestFileName is the manifest file looked for inside each plugin directory.
const ManifestFileName = "plugin.json"

// DuplicatePluginNameError is an error that is returned when two plugin
// directories resolve to the same plugin name
type DuplicatePluginNameError struct {
	Name string `json:"name"`
}

// Error returns the error message for the DuplicatePluginNameError
func (e *DuplicatePluginNameError) Error() string {
	return fmt.Sprintf("plugin with name %s already exists", e.Name)
}

// NewDuplicatePluginNameError creates a new DuplicatePluginNameError
func NewDuplicatePluginNameError(name string) *DuplicatePluginNameError {
	return &DuplicatePluginNameError{Name: name}
}

// Interface guard for DuplicatePluginNameError
var _ error = &DuplicatePluginNameError{}

// Plugin is a discovered plugin directory with a dependency manifest.
type Plugin struct {
	Name         string
	Dir          string
	ManifestPath string
}

// Discover scans the plugins directory for plugin directories carrying a
// dependency manifest. Directories without a manifest are skipped; they are
// plugins with no Python dependencies.
func Discover(pluginsDir string) ([]Plugin, error) {
	entries, errRead := os.ReadDir(pluginsDir)
	if errRead != nil {
		return nil, fmt.Errorf("failed to read plugins directory: %w", errRead)
	}

	seen := make(map[string]struct{})
	var found []Plugin

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		name := entry.Name()
		dir := filepath.Join(pluginsDir, name)
		manifestPath := filepath.Join(dir, ManifestFileName)

		if _, errStat := os.Stat(manifestPath); errStat != nil {
			zap.L().Debug("Skipping plugin directory without manifest", zap.String("dir", dir))
			continue
		}

		// Guard against plugin directories that collide on case-insensitive
		// filesystems, which would share a venv path.
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			return nil, NewDuplicatePluginNameError(name)
		}
		seen[key] = struct{}{}

		zap.L().Debug("Discovered plugin", zap.String("name", name), zap.String("manifest", manifestPath))
		found = append(found, Plugin{Name: name, Dir: dir, ManifestPath: manifestPath})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return found, nil
}
