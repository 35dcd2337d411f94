// Package rpmutils provides helpers for picking apart RPM
// name-version-release strings.
package rpmutils

import (
	"fmt"
	"runtime"
	"strings"
)

// NVR is a parsed name-version-release triple.
type NVR struct {
	Name    string
	Version string
	Release string
}

// String reassembles the triple into the standard N-V-R form.
func (n NVR) String() string {
	return n.Name + "-" + n.Version + "-" + n.Release
}

// NVRA is a parsed name-version-release.arch quadruple.
type NVRA struct {
	NVR
	Arch string
}

// String reassembles the quadruple into the standard N-V-R.A form.
func (n NVRA) String() string {
	return n.NVR.String() + "." + n.Arch
}

// NameOnly returns the package name portion of an N-V-R string.
// Package names may themselves contain dashes, so the version and
// release are split off from the right.
func NameOnly(nvr string) string {
	parts := strings.Split(nvr, "-")
	if len(parts) <= 2 {
		return nvr
	}
	return strings.Join(parts[:len(parts)-2], "-")
}

// ParseNVR splits an N-V-R string into its components. Returns an
// error if the string does not contain at least two dashes.
func ParseNVR(nvr string) (NVR, error) {
	verIdx := strings.LastIndex(nvr, "-")
	if verIdx <= 0 {
		return NVR{}, fmt.Errorf("malformed NVR %q", nvr)
	}
	nameIdx := strings.LastIndex(nvr[:verIdx], "-")
	if nameIdx <= 0 {
		return NVR{}, fmt.Errorf("malformed NVR %q", nvr)
	}
	return NVR{
		Name:    nvr[:nameIdx],
		Version: nvr[nameIdx+1 : verIdx],
		Release: nvr[verIdx+1:],
	}, nil
}

// ParseNVRA splits an N-V-R.A string into its components.
func ParseNVRA(nvra string) (NVRA, error) {
	archIdx := strings.LastIndex(nvra, ".")
	if archIdx <= 0 {
		return NVRA{}, fmt.Errorf("malformed NVRA %q", nvra)
	}
	nvr, err := ParseNVR(nvra[:archIdx])
	if err != nil {
		return NVRA{}, fmt.Errorf("malformed NVRA %q", nvra)
	}
	return NVRA{NVR: nvr, Arch: nvra[archIdx+1:]}, nil
}

// RPMArch returns the RPM architecture name for goarch, defaulting to
// the running architecture when goarch is empty.
func RPMArch(goarch string) string {
	if goarch == "" {
		goarch = runtime.GOARCH
	}
	switch goarch {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "386":
		return "i686"
	case "ppc64le", "s390x", "riscv64":
		return goarch
	default:
		return goarch
	}
}
