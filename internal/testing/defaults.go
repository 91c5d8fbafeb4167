// Package testing provides default values and helpers for testing pipwright.
package testing

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const defaultTestPythonBin = "python3"

func GetTestPythonBin() string {
	// note: this is a function so that the interpreter can be overridden on
	// machines where the default is unavailable.
	if bin := os.Getenv("PIPWRIGHT_TEST_PYTHON"); bin != "" {
		return bin
	}
	return defaultTestPythonBin
}

// WritePluginManifest writes a plugin manifest carrying the given dependency
// entries into dir and returns the manifest path.
func WritePluginManifest(dir string, entries ...string) (string, error) {
	if entries == nil {
		entries = []string{}
	}
	data, errMarshal := json.MarshalIndent(map[string]any{
		"name":                  filepath.Base(dir),
		"sbcPythonDependencies": entries,
	}, "", "  ")
	if errMarshal != nil {
		return "", fmt.Errorf("failed to marshal manifest: %w", errMarshal)
	}

	path := filepath.Join(dir, "plugin.json")
	// #nosec G306 -- test fixture file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}
	return path, nil
}
