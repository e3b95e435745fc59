package nwfetch

import "fmt"

// ResolutionError is returned when a version token cannot be resolved,
// either because the manifest is unreachable or malformed or because it
// does not define the requested alias.
type ResolutionError struct {
	Version     string
	ManifestURL string
	Err         error
}

func (e *ResolutionError) Error() string {
	switch {
	case e.Version != "" && e.ManifestURL != "":
		return fmt.Sprintf("failed to resolve version %q from %s: %v", e.Version, e.ManifestURL, e.Err)
	case e.ManifestURL != "":
		return fmt.Sprintf("failed to read version manifest %s: %v", e.ManifestURL, e.Err)
	default:
		return fmt.Sprintf("failed to resolve version %q: %v", e.Version, e.Err)
	}
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// FetchError is returned when the archive download fails. Any partially
// written file is left at Path.
type FetchError struct {
	URL  string
	Path string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to download %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ExtractionError is returned when an archive cannot be expanded. The
// archive and any partially extracted files are left in place.
type ExtractionError struct {
	Archive string
	Dir     string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract %s into %s: %v", e.Archive, e.Dir, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// CleanupWarning reports that the downloaded archive could not be removed
// after a successful extraction. It does not fail the acquisition.
type CleanupWarning struct {
	Path string
	Err  error
}

func (e *CleanupWarning) Error() string {
	return fmt.Sprintf("failed to remove archive %s: %v", e.Path, e.Err)
}

func (e *CleanupWarning) Unwrap() error {
	return e.Err
}
