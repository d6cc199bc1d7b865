// internal/region/region.go
//
// Region catalog for the map game.
//
// Responsibilities:
//   - Load the prepared region dataset (id/name records) from an
//     environment-provided file or fall back to the embedded default.
//   - Validate records: every region needs a non-empty id and name,
//     ids must be unique.
//   - Supply read-only lookups: All, IDs, Name, Count.
//
// Dataset:
//   - JSON array of {"id": "...", "name": "..."} records, produced by the
//     offline atlas prep script. Ids are the atlas's stable numeric strings
//     (e.g. "840" for the United States).
//
// Initialization behavior (Init):
//   1. If REGIONS_FILE is set, load and parse that file.
//   2. Otherwise fall back to the embedded dataset in assets/regions.json.
//
// Initialization is run once (sync.Once); the catalog is immutable after.

package region

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/soteland/world-map/assets"
)

// ErrUnavailable indicates the backing dataset could not be read or decoded.
var ErrUnavailable = errors.New("region dataset unavailable")

// ErrMalformed indicates the dataset decoded but is structurally invalid
// (missing id/name, duplicate id, or no records at all).
var ErrMalformed = errors.New("region dataset malformed")

// Region is a single clickable map region.
type Region struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

var (
	initOnce sync.Once
	regions  []Region
	names    map[string]string
	initErr  error
)

// Init loads the region catalog exactly once.
// Returns ErrUnavailable or ErrMalformed (wrapped) on failure.
func Init() error {
	initOnce.Do(func() {
		raw, src, err := readDataset()
		if err != nil {
			initErr = err
			return
		}
		list, lookup, err := parse(raw)
		if err != nil {
			initErr = fmt.Errorf("%s: %w", src, err)
			return
		}
		regions = list
		names = lookup
	})
	return initErr
}

// readDataset returns the raw JSON bytes plus a label for error messages.
func readDataset() ([]byte, string, error) {
	if path := os.Getenv("REGIONS_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("%w: read %s: %v", ErrUnavailable, path, err)
		}
		return raw, path, nil
	}
	return assets.Regions(), "embedded dataset", nil
}

// parse decodes and validates a dataset.
func parse(raw []byte) ([]Region, map[string]string, error) {
	var list []Region
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, nil, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	if len(list) == 0 {
		return nil, nil, fmt.Errorf("%w: no records", ErrMalformed)
	}
	lookup := make(map[string]string, len(list))
	for i, r := range list {
		if r.ID == "" || r.Name == "" {
			return nil, nil, fmt.Errorf("%w: record %d missing id or name", ErrMalformed, i)
		}
		if _, dup := lookup[r.ID]; dup {
			return nil, nil, fmt.Errorf("%w: duplicate id %q", ErrMalformed, r.ID)
		}
		lookup[r.ID] = r.Name
	}
	return list, lookup, nil
}

// All returns a copy of the catalog in dataset order.
func All() []Region {
	out := make([]Region, len(regions))
	copy(out, regions)
	return out
}

// IDs returns the region ids in dataset order.
func IDs() []string {
	out := make([]string, len(regions))
	for i, r := range regions {
		out[i] = r.ID
	}
	return out
}

// Name returns the display name for a region id.
func Name(id string) (string, bool) {
	n, ok := names[id]
	return n, ok
}

// Count reports how many regions are loaded.
func Count() int { return len(regions) }
