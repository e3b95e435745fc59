package nwfetch

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/adrien-f/nwfetch/fetch"
	"github.com/go-logr/logr"
	"golang.org/x/mod/semver"
)

// DefaultManifestURL lists the versions the named aliases currently point at.
const DefaultManifestURL = "https://nwjs.io/versions.json"

// versionPrefix marks canonical literal versions.
const versionPrefix = "v"

// Aliases are the version tokens resolved through the manifest.
var Aliases = []string{"latest", "stable", "lts"}

var (
	// ErrAliasNotFound is returned when the manifest has no entry for an alias.
	ErrAliasNotFound = errors.New("alias not found in version manifest")

	// ErrEmptyVersion is returned for an empty version token.
	ErrEmptyVersion = errors.New("version must not be empty")
)

// IsAlias reports whether token is one of Aliases.
func IsAlias(token string) bool {
	return slices.Contains(Aliases, token)
}

// Canonicalize prefixes a literal version with "v" unless it already has one.
func Canonicalize(token string) string {
	if strings.HasPrefix(token, versionPrefix) {
		return token
	}
	return versionPrefix + token
}

// Manifest is the document served at DefaultManifestURL.
type Manifest struct {
	Latest   string    `json:"latest"`
	Stable   string    `json:"stable"`
	LTS      string    `json:"lts"`
	Versions []Release `json:"versions"`
}

// Release is one entry of the manifest's version list.
type Release struct {
	Version string   `json:"version"`
	Date    string   `json:"date"`
	Files   []string `json:"files"`
	Flavors []string `json:"flavors"`
}

// Alias returns the version the manifest assigns to alias.
func (m *Manifest) Alias(alias string) (string, bool) {
	var v string
	switch alias {
	case "latest":
		v = m.Latest
	case "stable":
		v = m.Stable
	case "lts":
		v = m.LTS
	}
	return v, v != ""
}

// VersionResolver turns version tokens into canonical versions.
type VersionResolver struct {
	fetcher     fetch.Fetcher
	manifestURL string
	logger      logr.Logger
}

// NewVersionResolver creates a resolver reading aliases from manifestURL.
// An empty manifestURL means DefaultManifestURL.
func NewVersionResolver(f fetch.Fetcher, manifestURL string, logger logr.Logger) *VersionResolver {
	if manifestURL == "" {
		manifestURL = DefaultManifestURL
	}
	return &VersionResolver{
		fetcher:     f,
		manifestURL: manifestURL,
		logger:      logger,
	}
}

// Resolve returns the canonical version for token. Only aliases cause a
// network read. Alias values from the manifest are used verbatim.
func (r *VersionResolver) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", &ResolutionError{Version: token, Err: ErrEmptyVersion}
	}
	if !IsAlias(token) {
		return Canonicalize(token), nil
	}

	m, err := r.Manifest(ctx)
	if err != nil {
		var re *ResolutionError
		if errors.As(err, &re) {
			re.Version = token
		}
		return "", err
	}
	v, ok := m.Alias(token)
	if !ok {
		return "", &ResolutionError{Version: token, ManifestURL: r.manifestURL, Err: ErrAliasNotFound}
	}
	r.logger.V(1).Info("resolved version alias", "alias", token, "version", v)
	return v, nil
}

// Manifest fetches and decodes the version manifest.
func (r *VersionResolver) Manifest(ctx context.Context) (*Manifest, error) {
	var m Manifest
	if err := r.fetcher.GetJSON(ctx, r.manifestURL, &m); err != nil {
		return nil, &ResolutionError{ManifestURL: r.manifestURL, Err: err}
	}
	return &m, nil
}

// ListVersions returns the manifest's releases, newest first. Entries that
// are not valid semantic versions sort last.
func (r *VersionResolver) ListVersions(ctx context.Context) ([]Release, error) {
	m, err := r.Manifest(ctx)
	if err != nil {
		return nil, err
	}
	releases := slices.Clone(m.Versions)
	sortReleases(releases)
	return releases, nil
}

func sortReleases(releases []Release) {
	slices.SortStableFunc(releases, func(a, b Release) int {
		va, vb := Canonicalize(a.Version), Canonicalize(b.Version)
		okA, okB := semver.IsValid(va), semver.IsValid(vb)
		switch {
		case okA && okB:
			return semver.Compare(vb, va)
		case okA:
			return -1
		case okB:
			return 1
		default:
			return 0
		}
	})
}
