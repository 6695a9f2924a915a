package config

import (
	"os"
	"path/filepath"
	"strings"
)

// LoadPrompts scans directories for <category>.md files and returns their
// trimmed contents keyed by category. Later directories override earlier
// ones; missing directories are skipped.
func LoadPrompts(dirs ...string) (map[string]string, error) {
	prompts := make(map[string]string)

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
				continue
			}
			content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			if err != nil {
				continue
			}
			text := strings.TrimSpace(string(content))
			if text == "" {
				continue
			}
			prompts[strings.TrimSuffix(entry.Name(), ".md")] = text
		}
	}

	return prompts, nil
}
