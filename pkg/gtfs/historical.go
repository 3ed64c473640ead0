package gtfs

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/transitwpg/transitwpg/pkg/archive"
	"github.com/transitwpg/transitwpg/pkg/config"
	"github.com/transitwpg/transitwpg/pkg/database"
	"github.com/transitwpg/transitwpg/pkg/download"
)

// FeedVersion is one archived snapshot of a feed on Transitland.
type FeedVersion struct {
	SHA1                 string `json:"sha1"`
	FetchedAt            string `json:"fetched_at"`
	EarliestCalendarDate string `json:"earliest_calendar_date"`
	LatestCalendarDate   string `json:"latest_calendar_date"`
}

type feedVersionsResponse struct {
	FeedVersions []FeedVersion `json:"feed_versions"`
}

// TransitlandClient fetches archived feed versions from the Transitland
// v2 REST API. An API key is required for every call.
type TransitlandClient struct {
	BaseURL string
	FeedID  string
	APIKey  string

	HTTPClient *http.Client
}

func NewTransitlandClient(conf config.Config) (*TransitlandClient, error) {
	if conf.TransitlandAPIKey == "" {
		return nil, fmt.Errorf("WPGTRANSIT_TRANSITLAND_API_KEY is not set: historical feeds need a Transitland API key")
	}

	return &TransitlandClient{
		BaseURL:    conf.TransitlandURL,
		FeedID:     conf.TransitlandFeedID,
		APIKey:     conf.TransitlandAPIKey,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// FeedVersions lists the archived versions of the configured feed, newest
// first (Transitland's default ordering).
func (c *TransitlandClient) FeedVersions() ([]FeedVersion, error) {
	endpoint := fmt.Sprintf("%s/feeds/%s/feed_versions?limit=100",
		c.BaseURL, url.PathEscape(c.FeedID))

	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list feed versions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list feed versions: unexpected status %s", resp.Status)
	}

	var parsed feedVersionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode feed versions: %w", err)
	}

	return parsed.FeedVersions, nil
}

// FetchedBefore reports whether the version was captured strictly before
// the given ISO date.
func (v FeedVersion) FetchedBefore(isoDate string) bool {
	if len(v.FetchedAt) < 10 {
		return false
	}

	return v.FetchedAt[:10] < isoDate
}

// SelectVersion picks the newest feed version captured before cutoff, or
// the newest overall when cutoff is empty.
func SelectVersion(versions []FeedVersion, cutoff string) (FeedVersion, error) {
	var best FeedVersion
	for _, version := range versions {
		if cutoff != "" && !version.FetchedBefore(cutoff) {
			continue
		}
		if best.SHA1 == "" || version.FetchedAt > best.FetchedAt {
			best = version
		}
	}

	if best.SHA1 == "" {
		if cutoff != "" {
			return FeedVersion{}, fmt.Errorf("no feed version fetched before %s", cutoff)
		}
		return FeedVersion{}, fmt.Errorf("no feed versions available")
	}

	return best, nil
}

// LoadHistorical downloads the newest feed version captured before the PTN
// launch and loads it into suffixed tables (raw_gtfs_stops_pre_ptn and so
// on), so before/after comparisons can run against one database.
func LoadHistorical(db *database.Database, conf config.Config, suffix string) (map[string]int, error) {
	client, err := NewTransitlandClient(conf)
	if err != nil {
		return nil, err
	}

	versions, err := client.FeedVersions()
	if err != nil {
		return nil, err
	}

	cutoff := config.PTNLaunchDate
	version, err := SelectVersion(versions, cutoff)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("sha1", version.SHA1).
		Str("fetched_at", version.FetchedAt).
		Str("suffix", suffix).
		Msg("Selected historical feed version")

	archiveDir := conf.GTFSArchiveDir()
	zipPath := filepath.Join(archiveDir, version.SHA1+".zip")
	downloadURL := fmt.Sprintf("%s/feed_versions/%s/download", client.BaseURL, version.SHA1)

	if _, err := download.Fetch(downloadURL, zipPath, download.Options{
		Headers:  map[string]string{"apikey": client.APIKey},
		Validate: download.ValidZIP,
	}); err != nil {
		return nil, err
	}

	extractDir := filepath.Join(archiveDir, version.SHA1)
	if err := archive.ExtractZip(zipPath, extractDir); err != nil {
		return nil, err
	}

	loader := &Loader{
		DB:             db,
		Dir:            extractDir,
		Bounds:         conf.Bounds,
		SkipValidation: conf.SkipValidation,
	}

	return loader.LoadAll(suffix)
}
