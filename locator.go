package nwfetch

import (
	"strings"

	"github.com/adrien-f/nwfetch/extract"
)

// DefaultBaseURL is the NW.js release download host.
const DefaultBaseURL = "https://dl.nwjs.io"

const productName = "nwjs"

// ResolvedArchive identifies a release archive and where to download it.
type ResolvedArchive struct {
	Name    string         // e.g. nwjs-sdk-v0.50.0-win-ia32; also the cache key
	Version string         // canonical version
	Format  extract.Format // TarGz for linux, Zip otherwise
	URL     string
}

// Extension returns the archive file extension, including the dot.
func (a ResolvedArchive) Extension() string {
	return a.Format.Extension()
}

// FileName returns the archive file name.
func (a ResolvedArchive) FileName() string {
	return a.Name + a.Extension()
}

// ArchiveName builds the release name, e.g. nwjs-v0.44.5-linux-x64 or
// nwjs-sdk-v0.50.0-win-ia32.
func ArchiveName(flavor Flavor, version string, platform Platform, arch Arch) string {
	product := productName
	if flavor == FlavorSDK {
		product += "-sdk"
	}
	return strings.Join([]string{product, version, string(platform), string(arch)}, "-")
}

// FormatFor returns the archive format released for platform.
func FormatFor(platform Platform) extract.Format {
	if platform == PlatformLinux {
		return extract.TarGz
	}
	return extract.Zip
}

// ArchiveLocator maps resolved requests to release archives.
type ArchiveLocator struct {
	baseURL string
}

// NewArchiveLocator creates a locator for baseURL. An empty baseURL means
// DefaultBaseURL.
func NewArchiveLocator(baseURL string) ArchiveLocator {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return ArchiveLocator{baseURL: strings.TrimRight(baseURL, "/")}
}

// Locate computes the archive for r. It has no side effects.
func (l ArchiveLocator) Locate(r ResolvedRequest) ResolvedArchive {
	a := ResolvedArchive{
		Name:    ArchiveName(r.Flavor, r.Version, r.Platform, r.Arch),
		Version: r.Version,
		Format:  FormatFor(r.Platform),
	}
	a.URL = l.baseURL + "/" + r.Version + "/" + a.FileName()
	return a
}
