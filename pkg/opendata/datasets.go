package opendata

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed datasets.yaml
var datasetsYaml []byte

type DatasetKind string

const (
	KindTabular  DatasetKind = "tabular"
	KindSpatial  DatasetKind = "spatial"
	KindBoundary DatasetKind = "boundary"
)

// Date windows applied to operational datasets when querying the API.
const (
	WindowNone = ""
	WindowFeed = "feed" // GTFS feed validity period (or PTN launch onwards)
	WindowFull = "full" // everything the portal has
)

// Dataset describes one City of Winnipeg Open Data source.
type Dataset struct {
	Key      string `yaml:"key"`
	Resource string `yaml:"resource"`
	Table    string `yaml:"table"`
	Name     string `yaml:"name"`
	Kind     DatasetKind

	DateColumn string `yaml:"datecolumn"`
	Window     string

	NumericColumns []string `yaml:"numericcolumns"`

	// Boundary datasets only: candidate property names, tried in order.
	NameFields []string `yaml:"namefields"`
	AreaFields []string `yaml:"areafields"`
}

type datasetsFile struct {
	Datasets []Dataset
}

// Registry returns the built-in dataset registry.
func Registry() []Dataset {
	var parsed datasetsFile
	if err := yaml.Unmarshal(datasetsYaml, &parsed); err != nil {
		// The registry is embedded at build time, so this only trips in development
		panic(fmt.Sprintf("invalid embedded dataset registry: %s", err))
	}

	return parsed.Datasets
}

// Filter selects datasets by key or resource id. An empty include list
// means everything; exclude always wins.
func Filter(datasets []Dataset, include []string, exclude []string) []Dataset {
	matches := func(dataset Dataset, tokens []string) bool {
		for _, token := range tokens {
			if token == dataset.Key || token == dataset.Resource {
				return true
			}
		}
		return false
	}

	var selected []Dataset
	for _, dataset := range datasets {
		if len(include) > 0 && !matches(dataset, include) {
			continue
		}
		if matches(dataset, exclude) {
			continue
		}
		selected = append(selected, dataset)
	}

	return selected
}

// OfKind filters datasets to the given kinds.
func OfKind(datasets []Dataset, kinds ...DatasetKind) []Dataset {
	var selected []Dataset
	for _, dataset := range datasets {
		for _, kind := range kinds {
			if dataset.Kind == kind {
				selected = append(selected, dataset)
				break
			}
		}
	}

	return selected
}
