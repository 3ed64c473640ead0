package opendata

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"github.com/transitwpg/transitwpg/pkg/database"
	"github.com/transitwpg/transitwpg/pkg/download"
)

// featurePage keeps features as raw JSON so the merged file can be written
// by concatenation without re-encoding geometry.
type featurePage struct {
	Offset   int
	Features []json.RawMessage
}

type rawFeatureCollection struct {
	Type     string            `json:"type"`
	Features []json.RawMessage `json:"features"`
}

// FetchSpatial downloads a spatial dataset page by page and merges the
// pages into one FeatureCollection file under cacheDir. Pages download in
// parallel, bounded by the configured worker count, but are merged in
// offset order so the output is deterministic.
func FetchSpatial(db *database.Database, client *Client, dataset Dataset, cacheDir string, parallel int) (string, error) {
	mergedPath := filepath.Join(cacheDir, dataset.Resource+".geojson")
	if info, err := os.Stat(mergedPath); err == nil && info.Size() > 0 && download.ValidGeoJSON(mergedPath) {
		log.Debug().Str("path", mergedPath).Msg("Using cached FeatureCollection")
		return mergedPath, nil
	}

	where := WhereClause(db, dataset)

	total, err := client.Count(dataset.Resource, where)
	if err != nil {
		return "", err
	}

	pages := (total + PageSize - 1) / PageSize
	if pages == 0 {
		pages = 1
	}

	log.Info().
		Str("dataset", dataset.Name).
		Int("records", total).
		Int("pages", pages).
		Msg("Fetching spatial dataset")

	workers := pool.NewWithResults[featurePage]().WithErrors().WithMaxGoroutines(parallel)
	for page := 0; page < pages; page++ {
		offset := page * PageSize
		workers.Go(func() (featurePage, error) {
			return fetchPage(client, dataset.Resource, where, offset)
		})
	}

	results, err := workers.Wait()
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", dataset.Name, err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Offset < results[j].Offset })

	if err := writeMerged(mergedPath, results); err != nil {
		return "", err
	}

	return mergedPath, nil
}

func fetchPage(client *Client, resource string, where string, offset int) (featurePage, error) {
	pageURL := client.BuildURL(resource, "geojson", Query{
		Limit:  PageSize,
		Offset: offset,
		Where:  where,
	})

	req, err := http.NewRequest(http.MethodGet, pageURL, nil)
	if err != nil {
		return featurePage{}, err
	}
	for key, value := range client.Headers() {
		req.Header.Set(key, value)
	}

	resp, err := client.HTTPClient.Do(req)
	if err != nil {
		return featurePage{}, fmt.Errorf("page at offset %d: %w", offset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return featurePage{}, fmt.Errorf("page at offset %d: unexpected status %s", offset, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return featurePage{}, err
	}

	var collection rawFeatureCollection
	if err := json.Unmarshal(body, &collection); err != nil {
		return featurePage{}, fmt.Errorf("page at offset %d: %w", offset, err)
	}

	log.Debug().Int("offset", offset).Int("features", len(collection.Features)).Msg("Fetched page")

	return featurePage{Offset: offset, Features: collection.Features}, nil
}

// writeMerged streams pages into one FeatureCollection, writing to a temp
// file first so a crash never leaves a truncated cache entry.
func writeMerged(path string, pages []featurePage) error {
	partPath := path + ".part"
	out, err := os.Create(partPath)
	if err != nil {
		return err
	}

	if _, err := out.WriteString(`{"type":"FeatureCollection","features":[`); err != nil {
		out.Close()
		return err
	}

	merged := 0
	for _, page := range pages {
		for _, feature := range page.Features {
			if merged > 0 {
				if _, err := out.WriteString(","); err != nil {
					out.Close()
					return err
				}
			}
			if _, err := out.Write(feature); err != nil {
				out.Close()
				return err
			}
			merged++
		}
	}

	if _, err := out.WriteString("]}"); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	log.Info().Str("path", filepath.Base(path)).Int("features", merged).Msg("Merged FeatureCollection")

	return os.Rename(partPath, path)
}

// LoadSpatial loads a merged FeatureCollection into a table with the raw
// properties and geometry kept as JSON text.
func LoadSpatial(db *database.Database, dataset Dataset, path string) (int, error) {
	collection, err := readFeatureCollection(path)
	if err != nil {
		return 0, err
	}

	ddl := fmt.Sprintf(`CREATE TABLE %s (
		id INTEGER PRIMARY KEY,
		properties TEXT,
		geometry TEXT NOT NULL
	)`, dataset.Table)
	if err := db.DropCreate(dataset.Table, ddl); err != nil {
		return 0, err
	}

	tx, err := db.SQL.Begin()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s VALUES (?, ?, ?)", dataset.Table))
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	for i, feature := range collection.Features {
		properties, err := json.Marshal(feature.Properties)
		if err != nil {
			tx.Rollback()
			return 0, err
		}
		geometry, err := geojson.NewGeometry(feature.Geometry).MarshalJSON()
		if err != nil {
			tx.Rollback()
			return 0, err
		}

		if _, err := stmt.Exec(i+1, string(properties), string(geometry)); err != nil {
			tx.Rollback()
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	log.Info().Str("table", dataset.Table).Int("rows", len(collection.Features)).Msg("Loaded spatial dataset")

	return len(collection.Features), nil
}

func readFeatureCollection(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	collection, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	return collection, nil
}
