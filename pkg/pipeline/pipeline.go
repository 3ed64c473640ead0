package pipeline

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/transitwpg/transitwpg/pkg/archive"
	"github.com/transitwpg/transitwpg/pkg/config"
	"github.com/transitwpg/transitwpg/pkg/database"
	"github.com/transitwpg/transitwpg/pkg/download"
	"github.com/transitwpg/transitwpg/pkg/gtfs"
	"github.com/transitwpg/transitwpg/pkg/opendata"
	"github.com/transitwpg/transitwpg/pkg/transform"
)

// RunGTFS downloads, extracts and loads the current GTFS feed.
func RunGTFS(db *database.Database, conf config.Config, force bool) error {
	zipPath, err := download.Fetch(conf.GTFSURL, conf.GTFSZipPath(), download.Options{
		Validate: download.ValidZIP,
		Force:    force,
	})
	if err != nil {
		return err
	}

	if err := archive.ExtractZip(zipPath, conf.GTFSDir()); err != nil {
		return err
	}

	loader := &gtfs.Loader{
		DB:             db,
		Dir:            conf.GTFSDir(),
		Bounds:         conf.Bounds,
		SkipValidation: conf.SkipValidation,
	}

	results, err := loader.LoadAll("")
	if err != nil {
		return err
	}

	total := 0
	for _, count := range results {
		total += count
	}
	log.Info().Int("tables", len(results)).Int("rows", total).Msg("GTFS load complete")

	return nil
}

// RunBoundaries loads the neighbourhood and community boundary datasets.
func RunBoundaries(db *database.Database, conf config.Config) error {
	client := opendata.NewClient(conf)

	_, err := opendata.LoadBatch(db, client, conf, opendata.BatchOptions{
		Kinds: []opendata.DatasetKind{opendata.KindBoundary},
	})

	return err
}

// RunOpenData loads the tabular operational datasets (pass-ups, on-time
// performance, passenger counts).
func RunOpenData(db *database.Database, conf config.Config, limit int, include []string, exclude []string) error {
	client := opendata.NewClient(conf)

	_, err := opendata.LoadBatch(db, client, conf, opendata.BatchOptions{
		Limit:   limit,
		Include: include,
		Exclude: exclude,
		Kinds:   []opendata.DatasetKind{opendata.KindTabular},
	})

	return err
}

// RunActiveMobility loads the cycling network and walkway datasets.
func RunActiveMobility(db *database.Database, conf config.Config, include []string, exclude []string) error {
	client := opendata.NewClient(conf)

	_, err := opendata.LoadBatch(db, client, conf, opendata.BatchOptions{
		Include: include,
		Exclude: exclude,
		Kinds:   []opendata.DatasetKind{opendata.KindSpatial},
	})

	return err
}

// RunGraph builds every derived table the analysis layer reads: network
// edges, route statistics, coverage aggregates, reference tables and
// indexes.
func RunGraph(db *database.Database) error {
	if _, err := transform.BuildEdges(db); err != nil {
		return err
	}
	if _, err := transform.BuildWeightedEdges(db); err != nil {
		return err
	}
	if _, err := transform.BuildRouteStats(db); err != nil {
		return err
	}
	if err := transform.CreateReferenceTables(db); err != nil {
		return err
	}
	if err := transform.BuildCoverageAggs(db); err != nil {
		return err
	}

	return transform.CreateIndexes(db)
}

// RunActiveTrips materializes the active trip set for a service date.
// An empty date means today.
func RunActiveTrips(db *database.Database, targetDate string) error {
	if targetDate == "" {
		targetDate = time.Now().Format("2006-01-02")
	}

	_, err := transform.MaterializeActiveTrips(db, targetDate)

	return err
}

// RunHistorical loads an archived feed version into suffixed tables.
// Period is "pre-ptn" or "post-ptn".
func RunHistorical(db *database.Database, conf config.Config, period string) error {
	var suffix string
	switch period {
	case "pre-ptn":
		suffix = "pre_ptn"
	case "post-ptn":
		suffix = "post_ptn"
	default:
		return fmt.Errorf("unknown period %q: use pre-ptn or post-ptn", period)
	}

	_, err := gtfs.LoadHistorical(db, conf, suffix)

	return err
}

// RunViews creates the performance views joining GTFS with open data.
func RunViews(db *database.Database) error {
	return transform.CreatePerformanceViews(db)
}

// RunOptions selects which stages of the full pipeline to skip.
type RunOptions struct {
	SkipGTFS       bool
	SkipBoundaries bool
	SkipOpenData   bool
	SkipGraph      bool
	SkipViews      bool
}

// RunAll executes the full pipeline in dependency order.
func RunAll(db *database.Database, conf config.Config, opts RunOptions) error {
	stages := []struct {
		name string
		skip bool
		run  func() error
	}{
		{"gtfs", opts.SkipGTFS, func() error { return RunGTFS(db, conf, false) }},
		{"boundaries", opts.SkipBoundaries, func() error { return RunBoundaries(db, conf) }},
		{"open-data", opts.SkipOpenData, func() error { return RunOpenData(db, conf, 0, nil, nil) }},
		{"active-mobility", opts.SkipOpenData, func() error { return RunActiveMobility(db, conf, nil, nil) }},
		{"graph", opts.SkipGraph, func() error { return RunGraph(db) }},
		{"views", opts.SkipViews, func() error { return RunViews(db) }},
	}

	for _, stage := range stages {
		if stage.skip {
			log.Info().Str("stage", stage.name).Msg("Skipping stage")
			continue
		}

		log.Info().Str("stage", stage.name).Msg("Running stage")
		if err := stage.run(); err != nil {
			return fmt.Errorf("stage %s: %w", stage.name, err)
		}
	}

	log.Info().Msg("Pipeline complete")

	return nil
}

// Status logs the row count of every table in the store.
func Status(db *database.Database) error {
	tables, err := db.ListTables("%")
	if err != nil {
		return err
	}

	if len(tables) == 0 {
		log.Warn().Msg("No tables loaded yet")
		return nil
	}

	for _, table := range tables {
		count, err := db.CountRows(table)
		if err != nil {
			return err
		}
		log.Info().Str("table", table).Int64("rows", count).Send()
	}

	return nil
}

// Validate re-parses the extracted GTFS files and runs every validation
// check, reporting instead of loading.
func Validate(conf config.Config) error {
	loader := &gtfs.Loader{
		DB:     nil,
		Dir:    conf.GTFSDir(),
		Bounds: conf.Bounds,
	}

	return loader.ValidateOnly()
}
