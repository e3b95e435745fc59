// Package launcher writes platform launcher descriptors for packaged
// applications. It consumes the runtime directory produced by nwfetch and
// does not depend on how it was acquired.
package launcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// Descriptor holds the application metadata written into a launcher file.
type Descriptor struct {
	PackageName string // file name stem, e.g. "my-app"
	AppName     string // display name and executable name
	AppVersion  string
}

var desktopTemplate = template.Must(template.New("desktop").Parse(`[Desktop Entry]
Name={{.AppName}}
Version={{.AppVersion}}
Exec=bash -c "cd $(dirname %k) && ./{{.AppName}}"
Type=Application
Terminal=false
`))

// Validate checks that the descriptor can be written safely.
func (d Descriptor) Validate() error {
	if d.PackageName == "" {
		return errors.New("package name must not be empty")
	}
	if strings.ContainsAny(d.PackageName, `/\`) {
		return fmt.Errorf("package name %q must not contain path separators", d.PackageName)
	}
	if d.AppName == "" {
		return errors.New("app name must not be empty")
	}
	if strings.ContainsAny(d.AppName, "\n\"") {
		return fmt.Errorf("app name %q contains characters not allowed in a desktop entry", d.AppName)
	}
	if strings.Contains(d.AppVersion, "\n") {
		return fmt.Errorf("app version %q must be a single line", d.AppVersion)
	}
	return nil
}

// WriteDesktopFile writes <dir>/<PackageName>.desktop and returns its path.
func WriteDesktopFile(dir string, d Descriptor) (string, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	if err := desktopTemplate.Execute(&b, d); err != nil {
		return "", fmt.Errorf("render desktop file: %w", err)
	}

	path := filepath.Join(dir, d.PackageName+".desktop")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("write desktop file: %w", err)
	}
	return path, nil
}
