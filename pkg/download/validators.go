package download

import (
	"archive/zip"
	"encoding/json"
	"os"
)

// ValidZIP reports whether path is a readable, non-empty ZIP archive.
func ValidZIP(path string) bool {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return false
	}
	defer reader.Close()

	return true
}

// ValidGeoJSON reports whether path decodes to a GeoJSON FeatureCollection.
func ValidGeoJSON(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	var payload struct {
		Type string `json:"type"`
	}
	if err := json.NewDecoder(file).Decode(&payload); err != nil {
		return false
	}

	return payload.Type == "FeatureCollection"
}
