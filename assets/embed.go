package assets

import (
	_ "embed"
)

// regions.json is the output of the offline dataset prep step: a filtered
// world atlas reduced to {id, name} records. Kept embedded so the server
// runs without REGIONS_FILE configured.
//
//go:embed regions.json
var regionsJSON []byte

// Regions returns the embedded fallback region dataset as raw JSON.
func Regions() []byte { return regionsJSON }
