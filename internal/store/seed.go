package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadDirectory seeds a store from a directory tree of JSON documents laid
// out as <dir>/<collection>/<tokenID>.json. Non-JSON files are skipped.
// Returns the number of documents loaded.
func LoadDirectory(ctx context.Context, st Store, dir string) (int, error) {
	collections, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read metadata directory: %w", err)
	}

	loaded := 0
	for _, collectionEntry := range collections {
		if !collectionEntry.IsDir() {
			continue
		}
		collection := strings.ToLower(collectionEntry.Name())

		files, err := os.ReadDir(filepath.Join(dir, collectionEntry.Name()))
		if err != nil {
			return loaded, fmt.Errorf("failed to read collection %s: %w", collection, err)
		}

		for _, file := range files {
			name := file.Name()
			if file.IsDir() || !strings.HasSuffix(name, ".json") {
				continue
			}

			raw, err := os.ReadFile(filepath.Join(dir, collectionEntry.Name(), name))
			if err != nil {
				return loaded, fmt.Errorf("failed to read %s/%s: %w", collection, name, err)
			}
			if !json.Valid(raw) {
				return loaded, fmt.Errorf("invalid JSON in %s/%s", collection, name)
			}

			tokenID := strings.TrimSuffix(name, ".json")
			if err := st.Put(ctx, collection, tokenID, raw); err != nil {
				return loaded, err
			}
			loaded++
		}
	}

	return loaded, nil
}
