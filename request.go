package nwfetch

import (
	"fmt"
	"runtime"
)

// Flavor is a build variant of the NW.js runtime.
type Flavor string

const (
	FlavorNormal Flavor = "normal"
	FlavorSDK    Flavor = "sdk"
)

// Platform is an operating system as named in NW.js release archives.
type Platform string

const (
	PlatformLinux Platform = "linux"
	PlatformOSX   Platform = "osx"
	PlatformWin   Platform = "win"
)

// Arch is a CPU architecture as named in NW.js release archives.
type Arch string

const (
	ArchX64  Arch = "x64"
	ArchIA32 Arch = "ia32"
)

// ParseFlavor validates a flavor name.
func ParseFlavor(s string) (Flavor, error) {
	switch f := Flavor(s); f {
	case FlavorNormal, FlavorSDK:
		return f, nil
	}
	return "", fmt.Errorf("unknown flavor %q (expected normal or sdk)", s)
}

// ParsePlatform validates a platform name.
func ParsePlatform(s string) (Platform, error) {
	switch p := Platform(s); p {
	case PlatformLinux, PlatformOSX, PlatformWin:
		return p, nil
	}
	return "", fmt.Errorf("unknown platform %q (expected linux, osx or win)", s)
}

// ParseArch validates an architecture name.
func ParseArch(s string) (Arch, error) {
	switch a := Arch(s); a {
	case ArchX64, ArchIA32:
		return a, nil
	}
	return "", fmt.Errorf("unknown architecture %q (expected x64 or ia32)", s)
}

// HostTarget returns the platform and architecture of the running process.
func HostTarget() (Platform, Arch, error) {
	return targetFor(runtime.GOOS, runtime.GOARCH)
}

func targetFor(goos, goarch string) (Platform, Arch, error) {
	var p Platform
	switch goos {
	case "linux":
		p = PlatformLinux
	case "darwin":
		p = PlatformOSX
	case "windows":
		p = PlatformWin
	default:
		return "", "", fmt.Errorf("no NW.js build for GOOS %q", goos)
	}

	var a Arch
	switch goarch {
	case "amd64":
		a = ArchX64
	case "386":
		a = ArchIA32
	default:
		return "", "", fmt.Errorf("no NW.js build for GOARCH %q", goarch)
	}
	return p, a, nil
}

// Request describes one runtime to acquire.
type Request struct {
	Version  string // literal version ("0.44.5", "v0.44.5") or an alias: latest, stable, lts
	Flavor   Flavor
	Platform Platform
	Arch     Arch

	// ForceDownload re-fetches and re-extracts even when a cached copy exists.
	ForceDownload bool
}

// ResolvedRequest is a Request whose version token has been resolved to a
// canonical version. The embedded Request is kept unchanged.
type ResolvedRequest struct {
	Request
	Version string
}
