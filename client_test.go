package nwfetch

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/adrien-f/nwfetch/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	linuxName = "nwjs-v0.44.5-linux-x64"
	linuxURL  = "https://dl.nwjs.io/v0.44.5/nwjs-v0.44.5-linux-x64.tar.gz"
)

var linuxRequest = Request{
	Version:  "0.44.5",
	Flavor:   FlavorNormal,
	Platform: PlatformLinux,
	Arch:     ArchX64,
}

func newTestClient(t *testing.T, f *fakeFetcher, root string, opts ...Option) *Client {
	t.Helper()
	c, err := New(append([]Option{WithFetcher(f), WithCacheDir(root)}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestClient_Acquire_LinuxLiteral(t *testing.T) {
	root := t.TempDir()
	f := newFakeFetcher()
	f.archives[linuxURL] = tarGzRuntime(t, linuxName, map[string]string{"nw": "ELF"})
	c := newTestClient(t, f, root)

	res, err := c.Acquire(context.Background(), linuxRequest)
	require.NoError(t, err)

	assert.Equal(t, "v0.44.5", res.Version)
	assert.Equal(t, linuxName, res.Archive.Name)
	assert.Equal(t, ".tar.gz", res.Archive.Extension())
	assert.Equal(t, linuxURL, res.Archive.URL)
	assert.Equal(t, filepath.Join(root, linuxName), res.Dir)
	assert.True(t, filepath.IsAbs(res.Dir))
	assert.False(t, res.CacheHit)
	assert.Empty(t, res.Warnings)

	data, err := os.ReadFile(filepath.Join(res.Dir, "nw"))
	require.NoError(t, err)
	assert.Equal(t, "ELF", string(data))

	assert.NoFileExists(t, filepath.Join(root, linuxName+".tar.gz"), "transient archive must be removed")

	has, err := cache.NewFilesystemCache(root).Has(linuxName)
	require.NoError(t, err)
	assert.True(t, has)

	jsonCalls, downloadCalls := f.calls()
	assert.Zero(t, jsonCalls)
	assert.Equal(t, 1, downloadCalls)
}

func TestClient_Acquire_LatestSDKWin(t *testing.T) {
	const (
		name = "nwjs-sdk-0.50.0-win-ia32"
		url  = "https://dl.nwjs.io/0.50.0/nwjs-sdk-0.50.0-win-ia32.zip"
	)
	root := t.TempDir()
	f := newFakeFetcher()
	f.manifest = map[string]any{"latest": "0.50.0", "stable": "0.49.2"}
	f.archives[url] = zipRuntime(t, name, map[string]string{"nw.exe": "MZ"})
	c := newTestClient(t, f, root)

	res, err := c.Acquire(context.Background(), Request{
		Version:  "latest",
		Flavor:   FlavorSDK,
		Platform: PlatformWin,
		Arch:     ArchIA32,
	})
	require.NoError(t, err)

	assert.Equal(t, "0.50.0", res.Version)
	assert.Equal(t, name, res.Archive.Name)
	assert.Equal(t, ".zip", res.Archive.Extension())
	assert.FileExists(t, filepath.Join(res.Dir, "nw.exe"))
	assert.NoFileExists(t, filepath.Join(root, name+".zip"))

	jsonCalls, downloadCalls := f.calls()
	assert.Equal(t, 1, jsonCalls)
	assert.Equal(t, 1, downloadCalls)
}

func TestClient_Acquire_CacheHit(t *testing.T) {
	root := t.TempDir()
	fc := cache.NewFilesystemCache(root)
	require.NoError(t, os.MkdirAll(fc.Dir(linuxName), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(fc.Dir(linuxName), "nw"), []byte("cached"), 0755))
	require.NoError(t, fc.MarkComplete(linuxName))

	f := newFakeFetcher()
	c := newTestClient(t, f, root)

	res, err := c.Acquire(context.Background(), linuxRequest)
	require.NoError(t, err)
	assert.True(t, res.CacheHit)
	assert.Equal(t, filepath.Join(root, linuxName), res.Dir)

	data, err := os.ReadFile(filepath.Join(res.Dir, "nw"))
	require.NoError(t, err)
	assert.Equal(t, "cached", string(data))

	jsonCalls, downloadCalls := f.calls()
	assert.Zero(t, jsonCalls)
	assert.Zero(t, downloadCalls)
}

func TestClient_Acquire_PartialDirectoryIsNotAHit(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, linuxName), 0755))

	f := newFakeFetcher()
	f.archives[linuxURL] = tarGzRuntime(t, linuxName, map[string]string{"nw": "ELF"})
	c := newTestClient(t, f, root)

	res, err := c.Acquire(context.Background(), linuxRequest)
	require.NoError(t, err)
	assert.False(t, res.CacheHit)

	_, downloadCalls := f.calls()
	assert.Equal(t, 1, downloadCalls)
}

func TestClient_Acquire_ForceDownload(t *testing.T) {
	root := t.TempDir()
	fc := cache.NewFilesystemCache(root)
	require.NoError(t, os.MkdirAll(fc.Dir(linuxName), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(fc.Dir(linuxName), "stale"), []byte("old"), 0644))
	require.NoError(t, fc.MarkComplete(linuxName))

	f := newFakeFetcher()
	f.archives[linuxURL] = tarGzRuntime(t, linuxName, map[string]string{"nw": "fresh"})
	c := newTestClient(t, f, root)

	req := linuxRequest
	req.ForceDownload = true
	res, err := c.Acquire(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.CacheHit)

	_, downloadCalls := f.calls()
	assert.Equal(t, 1, downloadCalls)

	assert.NoFileExists(t, filepath.Join(res.Dir, "stale"))
	data, err := os.ReadFile(filepath.Join(res.Dir, "nw"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))

	has, err := fc.Has(linuxName)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestClient_Acquire_ResolutionFailureWritesNothing(t *testing.T) {
	root := filepath.Join(t.TempDir(), "cache")
	f := newFakeFetcher()
	f.manifestErr = errNetwork
	c := newTestClient(t, f, root)

	res, err := c.Acquire(context.Background(), Request{
		Version:  "stable",
		Flavor:   FlavorNormal,
		Platform: PlatformLinux,
		Arch:     ArchX64,
	})
	assert.Nil(t, res)

	var re *ResolutionError
	require.True(t, errors.As(err, &re), "got %v", err)
	assert.ErrorIs(t, err, errNetwork)
	assert.NoDirExists(t, root)

	_, downloadCalls := f.calls()
	assert.Zero(t, downloadCalls)
}

func TestClient_Acquire_UnknownAliasFails(t *testing.T) {
	f := newFakeFetcher()
	f.manifest = map[string]any{"latest": "v0.50.0"}
	c := newTestClient(t, f, t.TempDir())

	_, err := c.Acquire(context.Background(), Request{Version: "lts", Flavor: FlavorNormal, Platform: PlatformLinux, Arch: ArchX64})
	assert.ErrorIs(t, err, ErrAliasNotFound)
}

func TestClient_Acquire_FetchError(t *testing.T) {
	root := t.TempDir()
	f := newFakeFetcher()
	f.downloadErr = errNetwork
	c := newTestClient(t, f, root)

	_, err := c.Acquire(context.Background(), linuxRequest)

	var fe *FetchError
	require.True(t, errors.As(err, &fe), "got %v", err)
	assert.Equal(t, linuxURL, fe.URL)
	assert.Equal(t, filepath.Join(root, linuxName+".tar.gz"), fe.Path)
	assert.ErrorIs(t, err, errNetwork)
	assert.FileExists(t, fe.Path, "partial download is left for inspection")
}

func TestClient_Acquire_CorruptArchive(t *testing.T) {
	root := t.TempDir()
	f := newFakeFetcher()
	f.archives[linuxURL] = []byte("this is not gzip")
	c := newTestClient(t, f, root)

	_, err := c.Acquire(context.Background(), linuxRequest)

	var ee *ExtractionError
	require.True(t, errors.As(err, &ee), "got %v", err)
	archivePath := filepath.Join(root, linuxName+".tar.gz")
	assert.Equal(t, archivePath, ee.Archive)
	assert.FileExists(t, archivePath, "transient archive must not be deleted")

	has, err := cache.NewFilesystemCache(root).Has(linuxName)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestClient_Acquire_ArchiveCannotMarkItselfComplete(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for _, name := range []string{linuxName + "/nw", ".complete/" + linuxName} {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0644, Size: 1}))
		_, err := tw.Write([]byte("x"))
		require.NoError(t, err)
	}
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "../escape", Typeflag: tar.TypeReg, Mode: 0644}))
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())

	root := t.TempDir()
	f := newFakeFetcher()
	f.archives[linuxURL] = buf.Bytes()
	c := newTestClient(t, f, root)

	_, err := c.Acquire(context.Background(), linuxRequest)
	var ee *ExtractionError
	require.True(t, errors.As(err, &ee), "got %v", err)

	assert.NoFileExists(t, filepath.Join(root, ".complete", linuxName))
	assert.NoDirExists(t, filepath.Join(root, linuxName))
	has, err := cache.NewFilesystemCache(root).Has(linuxName)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestClient_Acquire_UnexpectedLayout(t *testing.T) {
	root := t.TempDir()
	f := newFakeFetcher()
	f.archives[linuxURL] = tarGzRuntime(t, "something-else", map[string]string{"nw": "ELF"})
	c := newTestClient(t, f, root)

	_, err := c.Acquire(context.Background(), linuxRequest)

	var ee *ExtractionError
	require.True(t, errors.As(err, &ee), "got %v", err)
	assert.ErrorIs(t, err, ErrMissingRuntimeDir)
}

// stuckArchiveCache turns the downloaded archive into a non-empty directory
// once extraction is done, so removing it fails.
type stuckArchiveCache struct {
	*cache.FilesystemCache
	archivePath string
}

func (c *stuckArchiveCache) MarkComplete(name string) error {
	if err := os.Remove(c.archivePath); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(c.archivePath, "busy"), 0755); err != nil {
		return err
	}
	return c.FilesystemCache.MarkComplete(name)
}

func TestClient_Acquire_CleanupWarning(t *testing.T) {
	root := t.TempDir()
	f := newFakeFetcher()
	f.archives[linuxURL] = tarGzRuntime(t, linuxName, map[string]string{"nw": "ELF"})

	fc := &stuckArchiveCache{
		FilesystemCache: cache.NewFilesystemCache(root),
		archivePath:     filepath.Join(root, linuxName+".tar.gz"),
	}
	c, err := New(WithFetcher(f), WithCache(fc))
	require.NoError(t, err)

	res, err := c.Acquire(context.Background(), linuxRequest)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)

	var cw *CleanupWarning
	require.True(t, errors.As(res.Warnings[0], &cw))
	assert.Equal(t, fc.archivePath, cw.Path)
	assert.FileExists(t, filepath.Join(res.Dir, "nw"))
}

func TestClient_Acquire_ConcurrentSameKey(t *testing.T) {
	root := t.TempDir()
	f := newFakeFetcher()
	f.archives[linuxURL] = tarGzRuntime(t, linuxName, map[string]string{"nw": "ELF"})

	// Two clients model two processes sharing one cache directory.
	clients := []*Client{newTestClient(t, f, root), newTestClient(t, f, root)}

	var wg sync.WaitGroup
	dirs := make([]string, 8)
	for i := range dirs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := clients[i%2].Acquire(context.Background(), linuxRequest)
			if assert.NoError(t, err) {
				dirs[i] = res.Dir
			}
		}(i)
	}
	wg.Wait()

	_, downloadCalls := f.calls()
	assert.Equal(t, 1, downloadCalls)
	for _, d := range dirs {
		assert.Equal(t, filepath.Join(root, linuxName), d)
	}
}

// stallingFetcher blocks its first download until the caller's context ends.
type stallingFetcher struct {
	*fakeFetcher
	started chan struct{}
	once    sync.Once
}

func (f *stallingFetcher) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	first := false
	f.once.Do(func() { first = true })
	if first {
		close(f.started)
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return f.fakeFetcher.Download(ctx, url, w)
}

func TestClient_Acquire_CancelledCallerDoesNotFailOthers(t *testing.T) {
	f := &stallingFetcher{fakeFetcher: newFakeFetcher(), started: make(chan struct{})}
	f.archives[linuxURL] = tarGzRuntime(t, linuxName, map[string]string{"nw": "ELF"})
	c, err := New(WithFetcher(f), WithCacheDir(t.TempDir()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Acquire(ctx, linuxRequest)
		firstErr <- err
	}()
	<-f.started

	var (
		res  *Result
		err2 error
		done = make(chan struct{})
	)
	go func() {
		defer close(done)
		res, err2 = c.Acquire(context.Background(), linuxRequest)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-firstErr, context.Canceled)
	<-done
	require.NoError(t, err2)
	assert.FileExists(t, filepath.Join(res.Dir, "nw"))
}

func TestResult_CloneDoesNotShareWarnings(t *testing.T) {
	r := &Result{Dir: "/cache/nw", Warnings: make([]error, 1, 4)}
	r.Warnings[0] = &CleanupWarning{Path: "a"}

	a, b := r.clone(), r.clone()
	a.Warnings = append(a.Warnings, errors.New("only a"))
	a.Warnings[0] = errors.New("replaced")

	assert.Len(t, b.Warnings, 1)
	assert.Equal(t, r.Warnings[0], b.Warnings[0])
	assert.Equal(t, "/cache/nw", b.Dir)
}

func TestClient_Acquire_ConcurrentDifferentKeys(t *testing.T) {
	root := t.TempDir()
	f := newFakeFetcher()
	f.archives[linuxURL] = tarGzRuntime(t, linuxName, map[string]string{"nw": "ELF"})
	f.archives["https://dl.nwjs.io/v0.44.5/nwjs-v0.44.5-win-x64.zip"] = zipRuntime(t, "nwjs-v0.44.5-win-x64", map[string]string{"nw.exe": "MZ"})
	f.archives["https://dl.nwjs.io/v0.44.5/nwjs-v0.44.5-osx-x64.zip"] = zipRuntime(t, "nwjs-v0.44.5-osx-x64", map[string]string{"nwjs.app/Contents/Info.plist": "<plist/>"})
	c := newTestClient(t, f, root)

	var wg sync.WaitGroup
	for _, p := range []Platform{PlatformLinux, PlatformWin, PlatformOSX} {
		wg.Add(1)
		go func(p Platform) {
			defer wg.Done()
			req := linuxRequest
			req.Platform = p
			res, err := c.Acquire(context.Background(), req)
			if assert.NoError(t, err) {
				assert.True(t, strings.HasSuffix(res.Dir, "-"+string(p)+"-x64"))
			}
		}(p)
	}
	wg.Wait()

	_, downloadCalls := f.calls()
	assert.Equal(t, 3, downloadCalls)
}

func TestClient_Acquire_HTTP(t *testing.T) {
	archive := tarGzRuntime(t, "nwjs-v0.50.0-linux-x64", map[string]string{"nw": "ELF"})
	var paths []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/versions.json":
			_, _ = w.Write([]byte(`{"latest":"v0.50.0","stable":"v0.50.0","lts":"v0.14.7","versions":[]}`))
		case "/v0.50.0/nwjs-v0.50.0-linux-x64.tar.gz":
			_, _ = w.Write(archive)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	root := t.TempDir()
	c, err := New(
		WithHTTPClient(srv.Client()),
		WithBaseURL(srv.URL),
		WithManifestURL(srv.URL+"/versions.json"),
		WithCacheDir(root),
	)
	require.NoError(t, err)

	req := Request{Version: "stable", Flavor: FlavorNormal, Platform: PlatformLinux, Arch: ArchX64}
	res, err := c.Acquire(context.Background(), req)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(res.Dir, "nw"))

	// Second run resolves the alias again but is served from the cache.
	res, err = c.Acquire(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.CacheHit)

	assert.Equal(t, []string{
		"/versions.json",
		"/v0.50.0/nwjs-v0.50.0-linux-x64.tar.gz",
		"/versions.json",
	}, paths)

	// A missing release surfaces as a FetchError.
	_, err = c.Acquire(context.Background(), Request{Version: "0.1.0", Flavor: FlavorNormal, Platform: PlatformLinux, Arch: ArchX64})
	var fe *FetchError
	assert.True(t, errors.As(err, &fe), "got %v", err)
}

func TestNew_Options(t *testing.T) {
	_, err := New(WithCacheDir(""))
	assert.Error(t, err)

	_, err = New(WithRequestTimeout(-1))
	assert.Error(t, err)
}
