package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bibin-skaria/ovpatch/internal/config"
	"github.com/bibin-skaria/ovpatch/overlay"
	"github.com/bibin-skaria/ovpatch/patch"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var (
	configPath string
	debug      bool
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ovpatch",
		Short: "Patch a read-only installation through writable overlays",
		Long: `ovpatch makes directories of a read-only installation temporarily
writable using the kernel's overlay mount facility, applies a staged file
tree on top of the system and tracks exactly what changed so the
modification can be inspected or fully reverted.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to the configuration file")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(newOverlayCommand())
	cmd.AddCommand(newPatchCommand())

	return cmd
}

func setup() (*config.Config, *overlay.Manager, *logrus.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	logger := logrus.New()
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	return cfg, overlay.NewManager(cfg.StoragePrefix, logger), logger, nil
}

// targets resolves the overlays to operate on: the given directories, or
// every currently active overlay when no directory was given.
func targets(manager *overlay.Manager, args []string) ([]*overlay.Overlay, error) {
	if len(args) == 0 {
		return manager.FindAll()
	}

	overlays := make([]*overlay.Overlay, 0, len(args))
	for _, dir := range args {
		ov, err := manager.Overlay(dir)
		if err != nil {
			return nil, err
		}
		overlays = append(overlays, ov)
	}
	return overlays, nil
}

func newOverlayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overlay",
		Short: "Manage writable overlays for system directories",
	}

	cmd.AddCommand(newOverlayCreateCommand())
	cmd.AddCommand(newOverlayListCommand())
	cmd.AddCommand(newOverlayResetCommand())
	cmd.AddCommand(newOverlayFilesCommand())
	cmd.AddCommand(newOverlayDiffCommand())
	cmd.AddCommand(newOverlayExportCommand())

	return cmd
}

func newOverlayCreateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create [dir...]",
		Short: "Make directories writable via overlay mounts",
		Long: `Mount a writable overlay over each given directory. Without arguments
the default directory set from the configuration is used. Directories that
are already writable are left alone.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, manager, _, err := setup()
			if err != nil {
				return err
			}

			dirs := args
			if len(dirs) == 0 {
				dirs = overlay.DefaultSet(cfg.DefaultDirs, cfg.ExpandDirs)
			}

			for _, dir := range dirs {
				if err := manager.Create(dir); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newOverlayListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List directories with an active overlay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, manager, _, err := setup()
			if err != nil {
				return err
			}

			overlays, err := manager.FindAll()
			if err != nil {
				return err
			}

			for _, ov := range overlays {
				fmt.Println(ov.ResolvedPath)
			}
			return nil
		},
	}
}

func newOverlayResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset [dir...]",
		Short: "Remove overlays, reverting directories to their original content",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, manager, _, err := setup()
			if err != nil {
				return err
			}

			overlays, err := targets(manager, args)
			if err != nil {
				return err
			}

			for _, ov := range overlays {
				if err := manager.Delete(ov.ResolvedPath); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newOverlayFilesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "files [dir...]",
		Short: "List files changed since the overlay was created",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, manager, _, err := setup()
			if err != nil {
				return err
			}

			overlays, err := targets(manager, args)
			if err != nil {
				return err
			}

			for _, ov := range overlays {
				files, err := manager.ChangedFiles(ov)
				if err != nil {
					return err
				}
				for _, file := range files {
					fmt.Println(file.SystemPath)
				}
			}
			return nil
		},
	}
}

func newOverlayDiffCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "diff [dir...]",
		Short: "Show a unified diff of all changes held in overlays",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, manager, _, err := setup()
			if err != nil {
				return err
			}

			overlays, err := targets(manager, args)
			if err != nil {
				return err
			}

			for _, ov := range overlays {
				if err := manager.Diff(ov, os.Stdout); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newOverlayExportCommand() *cobra.Command {
	var (
		output      string
		compression string
	)

	cmd := &cobra.Command{
		Use:   "export <dir>",
		Short: "Archive an overlay's changed files into a tarball",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, manager, _, err := setup()
			if err != nil {
				return err
			}

			compressionType, err := overlay.ParseCompressionType(compression)
			if err != nil {
				return err
			}

			ov, err := manager.Overlay(args[0])
			if err != nil {
				return err
			}

			if output == "" {
				output = "ovpatch-changes" + compressionType.Extension()
			}

			count, err := manager.Export(ov, output, compressionType)
			if err != nil {
				return err
			}

			fmt.Printf("Exported %d files to %s\n", count, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output archive path")
	cmd.Flags().StringVarP(&compression, "compression", "c", "gzip", "Compression type (none, gzip, zstd)")

	return cmd
}

func newPatchCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "patch <staged-root>",
		Short: "Apply a staged file tree onto the live system",
		Long: `Walk a staged directory tree and copy every file that differs from the
live system into place, creating writable overlays on demand for the
directories that need them. Files matching the configured ignore patterns
and files identical to the installed version are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, manager, logger, err := setup()
			if err != nil {
				return err
			}

			stagedRoot, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("failed to resolve staged tree path: %v", err)
			}

			engine := patch.NewEngine(manager, patch.NewIgnoreSet(cfg.IgnorePatterns), logger)
			engine.SetDryRun(dryRun)

			result, err := engine.Apply(stagedRoot)
			if result != nil {
				fmt.Printf("Changed files: %d\n", result.Applied)
				if result.Failed > 0 {
					fmt.Printf("Failed files: %d\n", result.Failed)
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report changes without modifying the system")

	return cmd
}
