package opendata

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/transitwpg/transitwpg/pkg/config"
)

// Client talks to a Socrata (SODA) open data portal.
type Client struct {
	Host     string
	AppToken string

	HTTPClient *http.Client
}

func NewClient(conf config.Config) *Client {
	return &Client{
		Host:       conf.OpenDataHost,
		AppToken:   conf.OpenDataToken,
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Query holds SODA query parameters. Offset is only emitted alongside a
// positive Limit, since an offset without a page size is meaningless.
type Query struct {
	Limit  int
	Offset int
	Where  string
	Select string
}

// BuildURL builds a SODA resource URL such as
// host/resource/mer2-irmb.geojson?$limit=50000&$offset=0.
func (c *Client) BuildURL(resource string, extension string, query Query) string {
	base := fmt.Sprintf("%s/resource/%s.%s", c.Host, resource, extension)

	values := url.Values{}
	if query.Limit > 0 {
		values.Set("$limit", strconv.Itoa(query.Limit))
		values.Set("$offset", strconv.Itoa(query.Offset))
	}
	if query.Where != "" {
		values.Set("$where", query.Where)
	}
	if query.Select != "" {
		values.Set("$select", query.Select)
	}

	if len(values) == 0 {
		return base
	}

	return base + "?" + values.Encode()
}

// ExportCSVURL is the bulk CSV export endpoint for a dataset.
func (c *Client) ExportCSVURL(resource string) string {
	return fmt.Sprintf("%s/api/v3/views/%s/export.csv", c.Host, resource)
}

// Headers returns the request headers for portal calls, including the app
// token when configured.
func (c *Client) Headers() map[string]string {
	headers := map[string]string{"Accept": "application/json"}
	if c.AppToken != "" {
		headers["X-App-Token"] = c.AppToken
	}

	return headers
}

// Count returns the number of rows a query would match.
func (c *Client) Count(resource string, where string) (int, error) {
	countURL := c.BuildURL(resource, "json", Query{Where: where, Select: "count(*)"})

	req, err := http.NewRequest(http.MethodGet, countURL, nil)
	if err != nil {
		return 0, err
	}
	for key, value := range c.Headers() {
		req.Header.Set(key, value)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", resource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("count %s: unexpected status %s", resource, resp.Status)
	}

	var payload []map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("count %s: %w", resource, err)
	}
	if len(payload) == 0 {
		return 0, nil
	}

	count, err := strconv.Atoi(payload[0]["count"])
	if err != nil {
		return 0, fmt.Errorf("count %s: bad count value %q", resource, payload[0]["count"])
	}

	return count, nil
}
