package opendata

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchSpatialMergesPagesInOrder(t *testing.T) {
	db := testDatabase(t)

	// Two pages worth of records; each page returns one feature tagged
	// with the offset it was requested at.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("$select") == "count(*)" {
			fmt.Fprintf(w, `[{"count": "%d"}]`, PageSize+1)
			return
		}

		offset := r.URL.Query().Get("$offset")
		fmt.Fprintf(w, `{"type":"FeatureCollection","features":[
			{"type":"Feature","properties":{"offset":"%s"},"geometry":{"type":"Point","coordinates":[-97.14,49.89]}}
		]}`, offset)
	}))
	defer server.Close()

	client := &Client{Host: server.URL, HTTPClient: server.Client()}
	dataset := Dataset{Key: "cycling", Resource: "kjd9-dvf5", Table: "raw_cycling_paths", Kind: KindSpatial}

	path, err := FetchSpatial(db, client, dataset, t.TempDir(), 4)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	collection, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	require.Len(t, collection.Features, 2)

	// Page order is deterministic regardless of download order
	assert.Equal(t, "0", collection.Features[0].Properties["offset"])
	assert.Equal(t, fmt.Sprint(PageSize), collection.Features[1].Properties["offset"])
}

func TestFetchSpatialUsesCachedMerge(t *testing.T) {
	db := testDatabase(t)

	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	cacheDir := t.TempDir()
	cached := filepath.Join(cacheDir, "kjd9-dvf5.geojson")
	require.NoError(t, os.WriteFile(cached, []byte(`{"type":"FeatureCollection","features":[]}`), 0o644))

	client := &Client{Host: server.URL, HTTPClient: server.Client()}
	dataset := Dataset{Key: "cycling", Resource: "kjd9-dvf5", Table: "raw_cycling_paths", Kind: KindSpatial}

	path, err := FetchSpatial(db, client, dataset, cacheDir, 4)

	require.NoError(t, err)
	assert.Equal(t, cached, path)
	assert.Zero(t, requests)
}

func TestLoadSpatial(t *testing.T) {
	db := testDatabase(t)

	path := filepath.Join(t.TempDir(), "lines.geojson")
	content := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"kind":"path"},"geometry":{"type":"LineString","coordinates":[[-97.14,49.89],[-97.15,49.90]]}}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	dataset := Dataset{Key: "cycling", Resource: "kjd9-dvf5", Table: "raw_cycling_paths", Kind: KindSpatial}

	rows, err := LoadSpatial(db, dataset, path)

	require.NoError(t, err)
	assert.Equal(t, 1, rows)

	var geometryText string
	err = db.SQL.QueryRow("SELECT geometry FROM raw_cycling_paths").Scan(&geometryText)
	require.NoError(t, err)

	var geometry map[string]any
	require.NoError(t, json.Unmarshal([]byte(geometryText), &geometry))
	assert.Equal(t, "LineString", geometry["type"])
}

func TestLoadBoundaryStandardizesColumns(t *testing.T) {
	db := testDatabase(t)

	path := filepath.Join(t.TempDir(), "areas.geojson")
	content := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"name":"Daniel McIntyre","area_km2":5.5},
		 "geometry":{"type":"Polygon","coordinates":[[[-97.2,49.88],[-97.1,49.88],[-97.1,49.92],[-97.2,49.92],[-97.2,49.88]]]}},
		{"type":"Feature","properties":{"other":"field"},
		 "geometry":{"type":"Polygon","coordinates":[[[-97.3,49.80],[-97.2,49.80],[-97.2,49.85],[-97.3,49.85],[-97.3,49.80]]]}}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	dataset := Dataset{
		Key: "neighbourhoods", Resource: "8k6x-xxsy", Table: "raw_neighbourhoods",
		Kind: KindBoundary, NameFields: []string{"name", "NAME"}, AreaFields: []string{"area_km2", "AREA_KM2"},
	}

	rows, err := LoadBoundary(db, dataset, path)

	require.NoError(t, err)
	assert.Equal(t, 2, rows)

	var name string
	var area float64
	err = db.SQL.QueryRow("SELECT name, area_km2 FROM raw_neighbourhoods WHERE id = 1").Scan(&name, &area)
	require.NoError(t, err)
	assert.Equal(t, "Daniel McIntyre", name)
	assert.InDelta(t, 5.5, area, 0.001)

	// Missing candidates fall back to sentinels
	err = db.SQL.QueryRow("SELECT name, area_km2 FROM raw_neighbourhoods WHERE id = 2").Scan(&name, &area)
	require.NoError(t, err)
	assert.Equal(t, "Unknown", name)
	assert.Zero(t, area)
}
