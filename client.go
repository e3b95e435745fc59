// Package nwfetch acquires NW.js runtimes for packaging.
//
// A Client resolves a version token, locates the matching release archive,
// and returns a directory from its cache, downloading and extracting the
// archive first when needed.
package nwfetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/adrien-f/nwfetch/cache"
	"github.com/adrien-f/nwfetch/extract"
	"github.com/adrien-f/nwfetch/fetch"
	"github.com/go-logr/logr"
	"golang.org/x/sync/singleflight"
)

// ErrMissingRuntimeDir is returned when an archive extracts cleanly but does
// not contain a top-level directory named after the archive.
var ErrMissingRuntimeDir = errors.New("archive did not contain the expected runtime directory")

// Stage names used in logs and metrics.
const (
	stageResolve = "resolve"
	stageFetch   = "fetch"
	stageExtract = "extract"
)

// Result describes a completed acquisition.
type Result struct {
	Dir      string // absolute path of the extracted runtime
	Version  string // canonical version
	Archive  ResolvedArchive
	CacheHit bool

	// Warnings holds non-fatal problems, such as a *CleanupWarning.
	Warnings []error
}

// clone returns a copy that shares no slices with r.
func (r *Result) clone() *Result {
	out := *r
	out.Warnings = slices.Clone(r.Warnings)
	return &out
}

// Client resolves, downloads, caches and extracts NW.js runtimes.
type Client struct {
	resolver *VersionResolver
	locator  ArchiveLocator
	fetcher  fetch.Fetcher
	cache    cache.Cache
	logger   logr.Logger
	metrics  *Metrics
	flights  singleflight.Group

	httpClient  *http.Client
	timeout     time.Duration
	baseURL     string
	manifestURL string
}

// New creates a new Client with the given options.
// If no options are provided, it uses default settings:
// - Filesystem cache in the user cache directory (e.g. ~/.cache/nwfetch)
// - Downloads from DefaultBaseURL, aliases from DefaultManifestURL
func New(opts ...Option) (*Client, error) {
	c := &Client{
		logger: logr.Discard(),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.fetcher == nil {
		c.fetcher = fetch.NewHTTPFetcher(c.httpClient, fetch.WithTimeout(c.timeout))
	}

	if c.cache == nil {
		cacheDir, err := DefaultCacheDir()
		if err != nil {
			return nil, err
		}
		c.cache = cache.NewFilesystemCache(cacheDir)
	}

	c.resolver = NewVersionResolver(c.fetcher, c.manifestURL, c.logger)
	c.locator = NewArchiveLocator(c.baseURL)

	return c, nil
}

// DefaultCacheDir returns the cache directory used when none is configured.
func DefaultCacheDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user cache directory: %w", err)
	}
	return filepath.Join(dir, "nwfetch"), nil
}

// Resolve resolves the version token of req without touching the cache.
func (c *Client) Resolve(ctx context.Context, req Request) (ResolvedRequest, error) {
	start := time.Now()
	defer c.metrics.observeStage(stageResolve, start)

	version, err := c.resolver.Resolve(ctx, req.Version)
	if err != nil {
		return ResolvedRequest{}, err
	}
	return ResolvedRequest{Request: req, Version: version}, nil
}

// Locate returns the archive a resolved request maps to.
func (c *Client) Locate(r ResolvedRequest) ResolvedArchive {
	return c.locator.Locate(r)
}

// ListVersions returns all releases listed in the version manifest, newest first.
func (c *Client) ListVersions(ctx context.Context) ([]Release, error) {
	return c.resolver.ListVersions(ctx)
}

// Acquire returns the directory holding the runtime described by req,
// downloading and extracting it first unless a complete cached copy exists.
//
// Failures are returned as *ResolutionError, *FetchError or
// *ExtractionError depending on the stage. Concurrent calls for the same
// archive are serialized, within this Client and across processes sharing
// the cache.
func (c *Client) Acquire(ctx context.Context, req Request) (res *Result, err error) {
	defer func() { c.metrics.acquisition(res, err) }()

	resolved, err := c.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	archive := c.locator.Locate(resolved)

	key := archive.Name
	if req.ForceDownload {
		key += "|force"
	}
	for {
		var led bool
		v, err, _ := c.flights.Do(key, func() (interface{}, error) {
			led = true
			return c.acquire(ctx, archive, req.ForceDownload)
		})
		if err != nil {
			// The flight ran under another caller's context. Run it again
			// if that caller gave up but this one has not.
			if !led && errors.Is(err, context.Canceled) && ctx.Err() == nil {
				c.logger.V(1).Info("shared acquisition was cancelled, retrying", "archive", archive.Name)
				continue
			}
			return nil, err
		}
		if !led {
			c.logger.V(1).Info("joined in-flight acquisition", "archive", archive.Name)
		}
		return v.(*Result).clone(), nil
	}
}

func (c *Client) acquire(ctx context.Context, archive ResolvedArchive, force bool) (*Result, error) {
	if err := c.cache.EnsureRoot(); err != nil {
		return nil, err
	}

	unlock, err := c.cache.Lock(ctx, archive.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to lock cache entry %s: %w", archive.Name, err)
	}
	defer func() {
		if err := unlock(); err != nil {
			c.logger.Error(err, "failed to release cache lock", "archive", archive.Name)
		}
	}()

	dir, err := filepath.Abs(c.cache.Dir(archive.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache path: %w", err)
	}
	res := &Result{
		Dir:     dir,
		Version: archive.Version,
		Archive: archive,
	}

	if force {
		c.metrics.cacheLookup(lookupBypass)
		if err := c.cache.Invalidate(archive.Name); err != nil {
			return nil, err
		}
	} else {
		// Re-check under the lock: another process may have populated it while we waited.
		cached, err := c.cache.Has(archive.Name)
		if err != nil {
			return nil, fmt.Errorf("cache lookup failed: %w", err)
		}
		if cached {
			c.metrics.cacheLookup(lookupHit)
			c.logger.Info("using cached runtime", "archive", archive.Name, "dir", dir)
			res.CacheHit = true
			return res, nil
		}
		c.metrics.cacheLookup(lookupMiss)
	}

	archivePath := c.cache.ArchivePath(archive.Name, archive.Extension())

	c.logger.Info("downloading runtime", "archive", archive.Name, "url", archive.URL)
	if err := c.download(ctx, archive.URL, archivePath); err != nil {
		return nil, err
	}

	c.logger.Info("extracting runtime", "archive", archivePath, "format", archive.Format.String())
	if err := c.extract(ctx, archive, archivePath); err != nil {
		return nil, err
	}

	if err := c.cache.MarkComplete(archive.Name); err != nil {
		return nil, err
	}

	if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
		warning := &CleanupWarning{Path: archivePath, Err: err}
		c.logger.Info("could not remove downloaded archive", "path", archivePath, "error", err.Error())
		res.Warnings = append(res.Warnings, warning)
	}

	c.logger.V(1).Info("runtime ready", "dir", dir)
	return res, nil
}

func (c *Client) download(ctx context.Context, url, path string) error {
	start := time.Now()
	defer c.metrics.observeStage(stageFetch, start)

	out, err := os.Create(path)
	if err != nil {
		return &FetchError{URL: url, Path: path, Err: err}
	}

	n, err := c.fetcher.Download(ctx, url, out)
	c.metrics.downloaded(n)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return &FetchError{URL: url, Path: path, Err: err}
	}

	c.logger.V(1).Info("downloaded archive", "path", path, "bytes", n)
	return nil
}

func (c *Client) extract(ctx context.Context, archive ResolvedArchive, archivePath string) error {
	start := time.Now()
	defer c.metrics.observeStage(stageExtract, start)

	staging, err := c.cache.StagingDir(archive.Name)
	if err != nil {
		return &ExtractionError{Archive: archivePath, Dir: c.cache.Dir(archive.Name), Err: err}
	}
	if err := extract.New(archive.Format).Extract(ctx, archivePath, staging); err != nil {
		return &ExtractionError{Archive: archivePath, Dir: staging, Err: err}
	}

	info, err := os.Lstat(filepath.Join(staging, archive.Name))
	if err != nil || !info.IsDir() {
		return &ExtractionError{Archive: archivePath, Dir: staging, Err: ErrMissingRuntimeDir}
	}

	if err := c.cache.Commit(archive.Name, staging); err != nil {
		return &ExtractionError{Archive: archivePath, Dir: staging, Err: err}
	}
	return nil
}
