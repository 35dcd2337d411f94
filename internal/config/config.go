// Package config loads runtime configuration and Koji build profiles.
package config

import "github.com/spf13/viper"

// Config holds runtime configuration for one invocation.
// Values are populated from .flatpak-module-tools.yaml,
// FLATPAK_MODULE_* env vars, and CLI flags.
type Config struct {
	Profile      string `mapstructure:"profile"`
	ProfileDir   string `mapstructure:"profile_dir"`
	DepchasePath string `mapstructure:"depchase_path"`
	KojiPath     string `mapstructure:"koji_path"`
	MockPath     string `mapstructure:"mock_path"`
	ParallelJobs int    `mapstructure:"parallel_jobs"`
	KojiParallel int    `mapstructure:"koji_parallel_jobs"`
	Verbose      bool   `mapstructure:"verbose"`
}

// Load reads configuration from viper, applying built-in defaults for
// any values not set by config file, environment, or flags.
func Load() Config {
	viper.SetDefault("profile", "fedora")
	viper.SetDefault("profile_dir", "")
	viper.SetDefault("depchase_path", "flatpak-module-depchase")
	viper.SetDefault("koji_path", "koji")
	viper.SetDefault("mock_path", "mock")
	viper.SetDefault("parallel_jobs", 3)
	viper.SetDefault("koji_parallel_jobs", 5)
	viper.SetDefault("verbose", false)

	var cfg Config
	_ = viper.Unmarshal(&cfg)
	return cfg
}
