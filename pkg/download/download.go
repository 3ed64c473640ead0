package download

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

const defaultTimeout = 600 * time.Second

// Validator checks a downloaded or cached file. Returning false marks the
// file as stale: it is deleted and fetched again.
type Validator func(path string) bool

type Options struct {
	// Headers are added to the request (API keys, Accept).
	Headers map[string]string
	// Validate is applied to both cached files and fresh downloads.
	Validate Validator
	// Force ignores any cached file and fetches a fresh copy.
	Force bool
	// Timeout overrides the default per-request timeout.
	Timeout time.Duration
}

// Fetch downloads url to dest unless a valid cached copy already exists.
//
// Downloads stream to a ".part" file and are renamed into place only on
// success, so partial downloads never appear as valid cache entries. A file
// that fails validation is deleted and fetched once more; a second failure
// is fatal. There is no further retry policy - this is a batch tool.
func Fetch(url string, dest string, opts Options) (string, error) {
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		if opts.Force {
			log.Info().Str("path", dest).Msg("Refreshing cached file")
			os.Remove(dest)
		} else if opts.Validate == nil || opts.Validate(dest) {
			log.Debug().Str("path", dest).Msg("Using cached file")
			return dest, nil
		} else {
			log.Warn().Str("path", dest).Msg("Cached file failed validation, re-downloading")
			os.Remove(dest)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}

	// One fresh attempt plus one retry when validation rejects the result
	attempt := func() error {
		if err := fetchOnce(url, dest, opts); err != nil {
			return err
		}

		if opts.Validate != nil && !opts.Validate(dest) {
			os.Remove(dest)
			return fmt.Errorf("downloaded file failed validation: %s", filepath.Base(dest))
		}

		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), 1)
	if err := backoff.Retry(attempt, policy); err != nil {
		return "", err
	}

	return dest, nil
}

func fetchOnce(url string, dest string, opts Options) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	client := &http.Client{Timeout: timeout}

	log.Info().Str("url", url).Str("path", dest).Msg("Downloading")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}

	partPath := dest + ".part"
	os.Remove(partPath)

	part, err := os.Create(partPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := io.Copy(part, resp.Body); err != nil {
		part.Close()
		os.Remove(partPath)
		return fmt.Errorf("write %s: %w", partPath, err)
	}
	if err := part.Close(); err != nil {
		os.Remove(partPath)
		return err
	}

	return os.Rename(partPath, dest)
}
