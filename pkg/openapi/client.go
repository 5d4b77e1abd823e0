package openapi

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
)

// DefaultBaseURL is the public boatrace open data feed.
const DefaultBaseURL = "https://boatraceopenapi.github.io"

// Client fetches one day of feed documents per call.
type Client struct {
	BaseURL string
	http    *retryablehttp.Client
}

// NewClient builds a feed client with retry and a request timeout.
// An empty baseURL falls back to DefaultBaseURL.
func NewClient(baseURL string) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = log.New(io.Discard, "", 0)
	retryClient.RetryMax = 3
	retryClient.HTTPClient.Timeout = 30 * time.Second

	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{BaseURL: baseURL, http: retryClient}
}

// FetchDay downloads the raw document for one data type and date.
// date must be YYYYMMDD; the feed shards files by year.
func (c *Client) FetchDay(ctx context.Context, dataType DataType, date string) ([]byte, error) {
	if len(date) != 8 {
		return nil, fmt.Errorf("bad date %q: want YYYYMMDD", date)
	}
	url := fmt.Sprintf("%s/%s/v2/%s/%s.json", c.BaseURL, dataType, date[:4], date)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "bort-scraping")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", dataType, date, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s %s: unexpected status %d", dataType, date, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", dataType, date, err)
	}
	return body, nil
}

// Count reports how many race entries a raw document carries, for
// progress messages. Returns 0 on any malformed document.
func Count(dataType DataType, doc []byte) int {
	return int(gjson.GetBytes(doc, string(dataType)+".#").Int())
}
