package nwfetch

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var errNetwork = errors.New("connection refused")

// fakeFetcher serves a manifest and archives from memory and records calls.
type fakeFetcher struct {
	mu sync.Mutex

	manifest    any
	manifestErr error
	archives    map[string][]byte
	downloadErr error

	jsonCalls     int
	downloadCalls int
	downloaded    []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{archives: make(map[string][]byte)}
}

func (f *fakeFetcher) GetJSON(ctx context.Context, url string, v any) error {
	f.mu.Lock()
	f.jsonCalls++
	manifest, err := f.manifest, f.manifestErr
	f.mu.Unlock()

	if err != nil {
		return err
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (f *fakeFetcher) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	f.mu.Lock()
	f.downloadCalls++
	f.downloaded = append(f.downloaded, url)
	body, ok := f.archives[url]
	err := f.downloadErr
	f.mu.Unlock()

	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("GET %s returned status 404", url)
	}
	n, err := w.Write(body)
	return int64(n), err
}

func (f *fakeFetcher) calls() (jsonCalls, downloadCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jsonCalls, f.downloadCalls
}

// tarGzRuntime builds a linux-style archive with a single top-level directory.
func tarGzRuntime(t *testing.T, root string, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: root + "/", Typeflag: tar.TypeDir, Mode: 0755}))
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     root + "/" + name,
			Typeflag: tar.TypeReg,
			Mode:     0755,
			Size:     int64(len(body)),
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

// zipRuntime builds an osx/win-style archive with a single top-level directory.
func zipRuntime(t *testing.T, root string, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(root + "/" + name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
