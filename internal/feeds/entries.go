package feeds

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ppiankov/corroborate/internal/model"
)

// LoadEntriesFile reads a JSON array of raw entries, such as a mailbox
// export. Missing provenance defaults to feed.
func LoadEntriesFile(path string) ([]model.RawEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read entries file: %w", err)
	}

	var entries []model.RawEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse entries file %s: %w", path, err)
	}

	for i := range entries {
		entries[i].Key = CanonicalURL(entries[i].Key)
		if entries[i].Provenance == "" {
			entries[i].Provenance = model.ProvenanceFeed
		}
		if entries[i].Category == "" {
			entries[i].Category = model.CategoryUnknown
		}
	}
	return entries, nil
}
