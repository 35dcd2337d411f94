package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/owtaylor/flatpak-module-tools/internal/config"
	"github.com/owtaylor/flatpak-module-tools/internal/depchase"
	"github.com/owtaylor/flatpak-module-tools/internal/koji"
	"github.com/owtaylor/flatpak-module-tools/internal/rpmbuilder"
	"github.com/owtaylor/flatpak-module-tools/internal/rpmutils"
)

var buildRPMsLocalCmd = &cobra.Command{
	Use:   "build-rpms-local [PKGS...]",
	Short: "Rebuild rpms needed for the container locally",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBuildRPMs(cmd, args, true)
	},
}

var buildRPMsCmd = &cobra.Command{
	Use:   "build-rpms [PKGS...]",
	Short: "Rebuild rpms needed for the container in Koji",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBuildRPMs(cmd, args, false)
	},
}

func init() {
	for _, c := range []*cobra.Command{buildRPMsLocalCmd, buildRPMsCmd} {
		c.Flags().String("containerspec", "container.yaml", "path to container.yaml")
		c.Flags().Bool("auto", false, "rebuild all packages needed to build the container")
		c.Flags().String("workdir", "", "working directory (default <arch>/work)")
		c.Flags().String("local-repo", "", "repository for dependencies and results (default <arch>/rpms)")
		c.Flags().StringSlice("runtime-package", nil, "package preinstalled in the runtime (repeatable)")
		rootCmd.AddCommand(c)
	}
}

// signalContext returns a context canceled on SIGINT or SIGTERM so
// the final status render shows in-flight builds as interrupted.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

func newBuilder(cmd *cobra.Command) (*rpmbuilder.Builder, error) {
	cfg := config.Load()

	profile, err := config.LoadProfile(cfg.ProfileDir, cfg.Profile)
	if err != nil {
		return nil, err
	}

	specPath, _ := cmd.Flags().GetString("containerspec")
	spec, err := config.LoadContainerSpec(specPath)
	if err != nil {
		return nil, err
	}

	arch := rpmutils.RPMArch("")
	repoPath, _ := cmd.Flags().GetString("local-repo")
	if repoPath == "" {
		repoPath = filepath.Join(arch, "rpms")
	}
	workdir, _ := cmd.Flags().GetString("workdir")
	if workdir == "" {
		workdir = filepath.Join(arch, "work")
	}
	repoPath, err = filepath.Abs(repoPath)
	if err != nil {
		return nil, err
	}
	workdir, err = filepath.Abs(workdir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return nil, err
	}

	runtimePackages, _ := cmd.Flags().GetStringSlice("runtime-package")
	releaseVer := strings.TrimPrefix(spec.Flatpak.RuntimeVersion, "f")

	session := &koji.CLISession{
		Path:    cfg.KojiPath,
		Profile: profile.Koji.Profile,
		Web:     profile.Koji.WebURL,
	}
	resolver := &depchase.CommandResolver{
		Path:      cfg.DepchasePath,
		LocalRepo: "local:" + repoPath,
	}
	if len(runtimePackages) > 0 {
		name := fmt.Sprintf("%s-%s.packages", spec.Flatpak.RuntimeName, spec.Flatpak.RuntimeVersion)
		path := filepath.Join(workdir, name)
		contents := strings.Join(runtimePackages, "\n") + "\n"
		if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
			return nil, err
		}
		resolver.PreinstalledFile = path
	}

	return &rpmbuilder.Builder{
		Cfg:             cfg,
		Profile:         profile,
		Session:         session,
		Resolver:        resolver,
		Out:             os.Stderr,
		Packages:        spec.Flatpak.Packages,
		RepoPath:        repoPath,
		Workdir:         workdir,
		Arch:            arch,
		ReleaseVer:      releaseVer,
		RuntimePackages: runtimePackages,
	}, nil
}

func runBuildRPMs(cmd *cobra.Command, args []string, local bool) error {
	auto, _ := cmd.Flags().GetBool("auto")
	if len(args) == 0 && !auto {
		fmt.Fprintln(os.Stderr, "Nothing to rebuild, specify packages or --auto")
		return nil
	}

	builder, err := newBuilder(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if local {
		return builder.BuildRPMsLocal(ctx, args, auto)
	}
	return builder.BuildRPMsKoji(ctx, args, auto)
}
