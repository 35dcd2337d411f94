package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// KojiConfig describes how to reach one Koji instance.
type KojiConfig struct {
	// Profile is the koji CLI profile name (-p flag).
	Profile string `toml:"profile"`
	// TopURL is the base URL for downloading build artifacts.
	TopURL string `toml:"topurl"`
	// WebURL is the base URL of the koji web interface, used for
	// task links in status output.
	WebURL string `toml:"weburl"`
}

// Profile is a build profile: the pair of Koji instances and build
// targets used when rebuilding packages for a particular distribution.
// Profiles are stored as TOML files, one per profile name.
type Profile struct {
	Name string `toml:"name"`

	// Koji is the instance builds are submitted to.
	Koji KojiConfig `toml:"koji"`
	// SourceKoji is the instance source packages are fetched from.
	// Often the same as Koji.
	SourceKoji KojiConfig `toml:"source_koji"`

	// RPMTarget is the koji build target for RPM rebuilds.
	RPMTarget string `toml:"rpm_target"`
	// FlatpakTarget is the koji build target for flatpak container
	// builds.
	FlatpakTarget string `toml:"flatpak_target"`
}

// DefaultProfileDir is where profile TOML files are looked up when no
// explicit directory is configured.
const DefaultProfileDir = "/etc/flatpak-module-tools/profiles"

// LoadProfile reads and decodes the named profile from dir. An empty
// dir falls back to DefaultProfileDir.
func LoadProfile(dir, name string) (*Profile, error) {
	if dir == "" {
		dir = DefaultProfileDir
	}
	path := filepath.Join(dir, name+".toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile %q: %w", name, err)
	}

	var p Profile
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profile %q: %w", name, err)
	}
	if p.Name == "" {
		p.Name = name
	}
	if p.SourceKoji == (KojiConfig{}) {
		p.SourceKoji = p.Koji
	}
	return &p, nil
}
