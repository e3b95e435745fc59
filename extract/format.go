package extract

import (
	"context"
	"fmt"
)

// Format identifies the archive layout used for a runtime release.
type Format int

const (
	// TarGz is a gzip-compressed tarball, used for linux releases.
	TarGz Format = iota + 1
	// Zip is used for osx and win releases.
	Zip
)

// Extension returns the file extension of archives in this format, including the dot.
func (f Format) Extension() string {
	switch f {
	case TarGz:
		return ".tar.gz"
	case Zip:
		return ".zip"
	default:
		return ""
	}
}

func (f Format) String() string {
	switch f {
	case TarGz:
		return "tar.gz"
	case Zip:
		return "zip"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// strategy expands archivePath into destDir.
type strategy func(ctx context.Context, archivePath, destDir string) error

func (f Format) strategy() (strategy, error) {
	switch f {
	case TarGz:
		return extractTarGz, nil
	case Zip:
		return extractZip, nil
	default:
		return nil, fmt.Errorf("unsupported archive format %s", f)
	}
}
