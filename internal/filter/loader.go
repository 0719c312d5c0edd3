package filter

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Version names one of the published blocklist sources config can
// point a filter reload at.
type Version string

const (
	Blu         Version = "blu"
	Ultimate    Version = "ultimate"
	OneHostsLite Version = "1hosts_lite"
	OneHostsPro  Version = "1hosts_pro"
)

var sourceURLs = map[Version]string{
	Ultimate:     "https://block.energized.pro/ultimate/formats/domains.txt",
	OneHostsLite: "https://badmojr.gitlab.io/1hosts/Lite/domains.txt",
	OneHostsPro:  "https://badmojr.gitlab.io/1hosts/Pro/domains.txt",
	Blu:          "https://block.energized.pro/blu/formats/domains.txt",
}

// DiskFilename returns the on-disk filename this version is cached
// under within the configured filter directory.
func (v Version) DiskFilename() string {
	switch v {
	case Ultimate:
		return "ultimate.txt"
	case OneHostsLite:
		return "1hosts_lite.txt"
	case OneHostsPro:
		return "1hosts_pro.txt"
	case Blu:
		return "blu.txt"
	default:
		return "test_filter.txt"
	}
}

// URL returns the upstream source URL for version, defaulting to Blu
// for an unrecognized value.
func (v Version) URL() string {
	if u, ok := sourceURLs[v]; ok {
		return u
	}
	return sourceURLs[Blu]
}

// Client is the pooled HTTP client used for filter reloads. Built once
// per process and shared, per the connection-reuse note this system
// documents for its other outbound HTTP traffic (DoH).
type Client struct {
	http *http.Client
}

// NewClient builds a Client with the given request timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{http: &http.Client{Timeout: timeout}}
}

// FromInternet fetches the blocklist for version over HTTPS, accepting
// a gzip-encoded body, and builds a fresh Filter in the given shape. On
// any failure — network, non-200 status, gzip, or parse — it returns an
// error and the caller is expected to keep the previously-live Filter.
func (c *Client) FromInternet(ctx context.Context, v Version, rep Representation) (*Filter, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.URL(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrLoad, err)
	}
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching %s: %v", ErrLoad, v.URL(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %s", ErrLoad, v.URL(), resp.Status)
	}

	body := io.Reader(resp.Body)
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %v", ErrLoad, err)
		}
		defer gz.Close()
		body = gz
	}

	f, err := Load(body, rep)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing body from %s: %v", ErrLoad, v.URL(), err)
	}
	return f, nil
}
