package mockbuild

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// MockConfig describes the mock configuration written once per run
// and shared by every chroot instance.
type MockConfig struct {
	Root       string
	Arch       string
	ReleaseVer string
	// LocalRepo is the directory holding this run's freshly built
	// RPMs. It is injected at maximum priority so rebuilt packages
	// win over the base repositories.
	LocalRepo string
	// BaseRepos are the distribution repositories, baseurl strings.
	BaseRepos []string
	// RuntimePackages are preinstalled in the buildroot instead of
	// being pulled via BuildRequires.
	RuntimePackages []string
}

var mockCfgTemplate = template.Must(template.New("mock.cfg").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(`config_opts['root'] = '{{ .Root }}'
config_opts['target_arch'] = '{{ .Arch }}'
config_opts['legal_host_arches'] = ('{{ .Arch }}',)
config_opts['releasever'] = '{{ .ReleaseVer }}'
config_opts['chroot_setup_cmd'] = 'install {{ join .RuntimePackages " " }}'
config_opts['package_manager'] = 'dnf'
config_opts['use_bootstrap'] = False

config_opts['dnf.conf'] = """
[main]
keepcache=1
debuglevel=2
reposdir=/dev/null
logfile=/var/log/yum.log
retries=20
obsoletes=1
gpgcheck=0
assumeyes=1
syslog_ident=mock
syslog_device=
install_weak_deps=0
metadata_expire=0
best=1
module_platform_id=platform:{{ .ReleaseVer }}

[local-build]
name=local-build
baseurl=file://{{ .LocalRepo }}
priority=1
{{ range $i, $url := .BaseRepos }}
[base-{{ $i }}]
name=base-{{ $i }}
baseurl={{ $url }}
priority=99
{{ end }}"""
`))

// WriteMockConfig renders the configuration to path and returns the
// path for use as mock's -r argument.
func WriteMockConfig(path string, cfg MockConfig) error {
	if cfg.Arch == "" {
		return fmt.Errorf("mock config: arch must be set")
	}
	var sb strings.Builder
	if err := mockCfgTemplate.Execute(&sb, cfg); err != nil {
		return fmt.Errorf("rendering mock config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("writing mock config: %w", err)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("writing mock config: %w", err)
	}
	return nil
}
