package config

import (
	"os"
	"path/filepath"
	"testing"
)

const fedoraProfile = `
name = "fedora"
rpm_target = "f39-flatpak-candidate"
flatpak_target = "f39-flatpak-container"

[koji]
profile = "koji"
topurl = "https://kojipkgs.fedoraproject.org"
weburl = "https://koji.fedoraproject.org/koji"
`

func writeProfile(t *testing.T, name, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, name+".toml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoadProfile(t *testing.T) {
	t.Parallel()

	dir := writeProfile(t, "fedora", fedoraProfile)
	p, err := LoadProfile(dir, "fedora")
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.RPMTarget != "f39-flatpak-candidate" {
		t.Errorf("RPMTarget = %q", p.RPMTarget)
	}
	if p.Koji.TopURL != "https://kojipkgs.fedoraproject.org" {
		t.Errorf("Koji.TopURL = %q", p.Koji.TopURL)
	}
	// source_koji was omitted, so it inherits the koji section.
	if p.SourceKoji != p.Koji {
		t.Errorf("SourceKoji = %+v, want %+v", p.SourceKoji, p.Koji)
	}
}

func TestLoadProfileMissing(t *testing.T) {
	t.Parallel()

	if _, err := LoadProfile(t.TempDir(), "nope"); err == nil {
		t.Error("LoadProfile succeeded for missing profile")
	}
}

func TestLoadProfileBadTOML(t *testing.T) {
	t.Parallel()

	dir := writeProfile(t, "broken", "name = [not toml")
	if _, err := LoadProfile(dir, "broken"); err == nil {
		t.Error("LoadProfile succeeded for invalid TOML")
	}
}
