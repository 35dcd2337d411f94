// Package cmd implements the flatpak-module-tools command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "flatpak-module-tools",
	Short: "Rebuild the RPMs a flatpak container needs",
	Long: "flatpak-module-tools rebuilds the packages a flatpak installs that " +
		"are not yet built with flatpak-specific prefixes, either locally in " +
		"mock chroots or by submitting builds to Koji, ordered by their " +
		"build requirements.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default .flatpak-module-tools.yaml)")
	rootCmd.PersistentFlags().StringP("profile", "p", "fedora", "build profile name")
	rootCmd.PersistentFlags().String("profile-dir", "", "directory holding profile definitions")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	_ = viper.BindPFlag("profile", rootCmd.PersistentFlags().Lookup("profile"))
	_ = viper.BindPFlag("profile_dir", rootCmd.PersistentFlags().Lookup("profile-dir"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if cfgFile, _ := rootCmd.Flags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".flatpak-module-tools")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
	}

	viper.SetEnvPrefix("FLATPAK_MODULE")
	viper.AutomaticEnv()

	// It's fine if no config file is found; we use defaults.
	_ = viper.ReadInConfig()
}
