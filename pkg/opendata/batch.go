package opendata

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/transitwpg/transitwpg/pkg/config"
	"github.com/transitwpg/transitwpg/pkg/database"
)

// BatchOptions controls a multi-dataset load.
type BatchOptions struct {
	// Limit caps rows per tabular dataset; zero means no cap.
	Limit int
	// Include/Exclude filter by dataset key or resource id.
	Include []string
	Exclude []string
	// Kinds restricts the batch to the given dataset kinds.
	Kinds []DatasetKind
}

// LoadBatch attempts every selected dataset, collecting failures instead
// of aborting on the first. The returned counts cover the datasets that
// loaded; the aggregate error names only the ones that failed.
func LoadBatch(db *database.Database, client *Client, conf config.Config, opts BatchOptions) (map[string]int, error) {
	datasets := Filter(Registry(), opts.Include, opts.Exclude)
	if len(opts.Kinds) > 0 {
		datasets = OfKind(datasets, opts.Kinds...)
	}

	return LoadDatasets(db, client, conf, datasets, opts.Limit)
}

// LoadDatasets is LoadBatch for an explicit dataset list.
func LoadDatasets(db *database.Database, client *Client, conf config.Config, datasets []Dataset, limit int) (map[string]int, error) {
	counts := map[string]int{}
	var failed []string

	for _, dataset := range datasets {
		rows, err := loadOne(db, client, conf, dataset, limit)
		if err != nil {
			log.Error().Err(err).Str("dataset", dataset.Name).Msg("Failed to load dataset")
			failed = append(failed, dataset.Table)
			continue
		}

		counts[dataset.Key] = rows
	}

	if len(failed) > 0 {
		return counts, fmt.Errorf("open data batch incomplete, failed tables: %s", strings.Join(failed, ", "))
	}

	return counts, nil
}

func loadOne(db *database.Database, client *Client, conf config.Config, dataset Dataset, limit int) (int, error) {
	log.Info().Str("dataset", dataset.Name).Msg("Loading dataset")

	switch dataset.Kind {
	case KindTabular:
		return LoadTabular(db, client, dataset, conf.RawDataDir(), limit)
	case KindSpatial, KindBoundary:
		path, err := FetchSpatial(db, client, dataset, conf.RawDataDir(), conf.ParallelPageDownloads)
		if err != nil {
			return 0, err
		}
		if dataset.Kind == KindBoundary {
			return LoadBoundary(db, dataset, path)
		}
		return LoadSpatial(db, dataset, path)
	default:
		return 0, fmt.Errorf("unknown dataset kind %q for %s", dataset.Kind, dataset.Key)
	}
}
