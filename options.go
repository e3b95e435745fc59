package nwfetch

import (
	"fmt"
	"net/http"
	"time"

	"github.com/adrien-f/nwfetch/cache"
	"github.com/adrien-f/nwfetch/fetch"
	"github.com/go-logr/logr"
)

// Option configures a Client.
type Option func(*Client) error

// WithLogger sets a custom logger for the client.
// If not set, logging is disabled (logr.Discard() is used).
func WithLogger(logger logr.Logger) Option {
	return func(cl *Client) error {
		cl.logger = logger
		return nil
	}
}

// WithCache sets a custom cache implementation.
func WithCache(c cache.Cache) Option {
	return func(cl *Client) error {
		cl.cache = c
		return nil
	}
}

// WithCacheDir sets the filesystem cache directory.
func WithCacheDir(dir string) Option {
	return func(cl *Client) error {
		if dir == "" {
			return fmt.Errorf("cache directory must not be empty")
		}
		cl.cache = cache.NewFilesystemCache(dir)
		return nil
	}
}

// WithFetcher sets the implementation used for all network reads. It takes
// precedence over WithHTTPClient and WithRequestTimeout.
func WithFetcher(f fetch.Fetcher) Option {
	return func(cl *Client) error {
		cl.fetcher = f
		return nil
	}
}

// WithHTTPClient sets a custom HTTP client for the default fetcher.
func WithHTTPClient(client *http.Client) Option {
	return func(cl *Client) error {
		cl.httpClient = client
		return nil
	}
}

// WithRequestTimeout bounds each network call made by the default fetcher.
// Zero means no bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(cl *Client) error {
		if d < 0 {
			return fmt.Errorf("request timeout must not be negative")
		}
		cl.timeout = d
		return nil
	}
}

// WithBaseURL sets the host archives are downloaded from.
// Defaults to DefaultBaseURL.
func WithBaseURL(url string) Option {
	return func(cl *Client) error {
		cl.baseURL = url
		return nil
	}
}

// WithManifestURL sets where version aliases are looked up.
// Defaults to DefaultManifestURL.
func WithManifestURL(url string) Option {
	return func(cl *Client) error {
		cl.manifestURL = url
		return nil
	}
}

// WithMetrics enables metrics collection.
func WithMetrics(m *Metrics) Option {
	return func(cl *Client) error {
		cl.metrics = m
		return nil
	}
}
