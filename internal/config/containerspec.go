package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// FlatpakSpec is the flatpak section of a container.yaml.
type FlatpakSpec struct {
	ID             string `mapstructure:"id"`
	Name           string `mapstructure:"name"`
	RuntimeName    string `mapstructure:"runtime-name"`
	RuntimeVersion string `mapstructure:"runtime-version"`

	// Packages are the binary packages installed into the flatpak.
	Packages []string `mapstructure:"packages"`
}

// ContainerSpec is the parsed container.yaml describing what to
// build.
type ContainerSpec struct {
	Flatpak FlatpakSpec `mapstructure:"flatpak"`
}

// LoadContainerSpec reads and validates a container.yaml.
func LoadContainerSpec(path string) (*ContainerSpec, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading container spec: %w", err)
	}

	var spec ContainerSpec
	if err := v.Unmarshal(&spec); err != nil {
		return nil, fmt.Errorf("parsing container spec: %w", err)
	}
	if len(spec.Flatpak.Packages) == 0 {
		return nil, fmt.Errorf("container spec %s lists no flatpak packages", path)
	}
	return &spec, nil
}
