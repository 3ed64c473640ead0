package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// BoundingBox is the geographic box stop coordinates are validated against.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// WinnipegBounds covers the City of Winnipeg service area.
var WinnipegBounds = BoundingBox{
	MinLat: 49.75,
	MaxLat: 50.00,
	MinLon: -97.35,
	MaxLon: -96.95,
}

// PTNLaunchDate is the Primary Transit Network launch, used as the
// before/after boundary for historical comparisons.
const PTNLaunchDate = "2025-06-29"

const (
	defaultGTFSURL           = "https://gtfs.winnipegtransit.com/google_transit.zip"
	defaultOpenDataHost      = "https://data.winnipeg.ca"
	defaultTransitlandURL    = "https://transit.land/api/v2/rest"
	defaultTransitlandFeedID = "f-cbfg-winnipegtransit"
)

type Config struct {
	DataDir string
	DBPath  string

	GTFSURL string

	OpenDataHost  string
	OpenDataToken string

	TransitlandURL    string
	TransitlandFeedID string
	TransitlandAPIKey string

	ParallelPageDownloads int
	SkipValidation        bool

	Bounds BoundingBox
}

// Load reads configuration from the environment, applying defaults for
// anything unset.
func Load() Config {
	dataDir := getEnv("WPGTRANSIT_DATA_DIR", "data")

	return Config{
		DataDir: dataDir,
		DBPath:  getEnv("WPGTRANSIT_DB_PATH", filepath.Join(dataDir, "processed", "wpg_transit.db")),

		GTFSURL: getEnv("WPGTRANSIT_GTFS_URL", defaultGTFSURL),

		OpenDataHost:  getEnv("WPGTRANSIT_OPEN_DATA_HOST", defaultOpenDataHost),
		OpenDataToken: os.Getenv("WPGTRANSIT_OPEN_DATA_TOKEN"),

		TransitlandURL:    getEnv("WPGTRANSIT_TRANSITLAND_URL", defaultTransitlandURL),
		TransitlandFeedID: getEnv("WPGTRANSIT_TRANSITLAND_FEED_ID", defaultTransitlandFeedID),
		TransitlandAPIKey: os.Getenv("WPGTRANSIT_TRANSITLAND_API_KEY"),

		ParallelPageDownloads: clamp(getEnvInt("WPGTRANSIT_PARALLEL_PAGE_DOWNLOADS", 10), 1, 20),
		SkipValidation:        os.Getenv("WPGTRANSIT_SKIP_VALIDATION") == "YES",

		Bounds: WinnipegBounds,
	}
}

func (c Config) RawDataDir() string {
	return filepath.Join(c.DataDir, "raw")
}

func (c Config) GTFSDir() string {
	return filepath.Join(c.RawDataDir(), "gtfs")
}

func (c Config) GTFSZipPath() string {
	return filepath.Join(c.RawDataDir(), "google_transit.zip")
}

func (c Config) GTFSArchiveDir() string {
	return filepath.Join(c.RawDataDir(), "gtfs_archive")
}

func getEnv(key string, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}

	return value
}

func clamp(value int, min int, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}

	return value
}
