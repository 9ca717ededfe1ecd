package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/aheadley/overviewer-bg3-mods/internal/version"
	"github.com/aheadley/overviewer-bg3-mods/pkg/config"
	"github.com/aheadley/overviewer-bg3-mods/pkg/installer"
	"github.com/aheadley/overviewer-bg3-mods/pkg/logging"
	"github.com/aheadley/overviewer-bg3-mods/pkg/steam"
)

var (
	verbosity  int
	dryRun     bool
	uninstall  bool
	optional   bool
	assumeYes  bool
	gameDir    string
	appDataDir string
	steamDir   string

	rootCmd = &cobra.Command{
		Use:   "bg3mods",
		Short: "Deploy mod files into a Baldur's Gate 3 installation",
		Long: `bg3mods deploys the mod files in the current directory into the game
installation and the game's appdata directory. Every change is recorded
in a journal inside each target, so a later run (or --uninstall) can
undo exactly what was deployed without touching files added or edited
by anything else.`,
		Args: cobra.NoArgs,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")
	rootCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Preview changes without applying them")
	rootCmd.Flags().BoolVarP(&uninstall, "uninstall", "d", false, "Undo the previous deployment and install nothing")
	rootCmd.Flags().BoolVarP(&optional, "optional", "o", false, "Also deploy the optional mod files")
	rootCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Apply changes without asking for confirmation")
	rootCmd.Flags().StringVarP(&gameDir, "game", "g", "", "Game installation directory (skips discovery)")
	rootCmd.Flags().StringVarP(&appDataDir, "appdata", "a", "", "Game appdata directory (skips discovery)")
	rootCmd.Flags().StringVarP(&steamDir, "steam", "s", "", "Steam installation directory")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bg3mods version %s\n", version.Version)
		fmt.Printf("  commit: %s\n", version.Commit)
		fmt.Printf("  built:  %s\n", version.Date)
	},
}

func run() error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	cfg, err := config.LoadDir(cwd)
	if err != nil {
		return err
	}

	paths, err := discover(cfg)
	if err != nil {
		return err
	}

	game, err := installer.New(paths.Game, installer.Options{
		Protected:    cfg.Protected,
		BackupSuffix: cfg.BackupSuffix,
	})
	if err != nil {
		return err
	}
	appdata, err := installer.New(paths.AppData, installer.Options{
		BackupSuffix: cfg.BackupSuffix,
	})
	if err != nil {
		return err
	}
	targets := []*installer.Installer{game, appdata}

	for _, target := range targets {
		if err := target.PlanUndo(); err != nil {
			return err
		}
	}
	if !uninstall {
		if err := planSources(cwd, cfg, game, appdata); err != nil {
			return err
		}
	}

	anyChanges := false
	for _, target := range targets {
		changed, err := target.HasChanges()
		if err != nil {
			return err
		}
		anyChanges = anyChanges || changed
	}
	if !anyChanges {
		fmt.Println("Nothing to do.")
		return nil
	}

	for _, target := range targets {
		steps, err := target.Steps()
		if err != nil {
			return err
		}
		renderPlan(os.Stdout, target.Root(), steps)
	}

	if dryRun {
		return nil
	}
	if !assumeYes && !confirm() {
		fmt.Println("Aborted.")
		return nil
	}

	for _, target := range targets {
		if err := target.Commit(); err != nil {
			return err
		}
	}
	fmt.Println("Done.")
	return nil
}

// discover resolves the two target roots, probing the platform only when
// an override is missing.
func discover(cfg config.Config) (steam.Paths, error) {
	d := &steam.Discovery{
		SteamDir:   steamDir,
		GameDir:    gameDir,
		AppDataDir: appDataDir,
		GameFolder: cfg.GameFolder,
		AppID:      cfg.SteamAppID,
		VendorPath: cfg.AppDataPath,
	}
	if gameDir == "" || appDataDir == "" {
		platform, err := steam.CurrentPlatform()
		if err != nil {
			return steam.Paths{}, err
		}
		d.Platform = platform
	}
	return d.Discover()
}

// planSources queues every mod directory present in cwd. Missing
// directories are simply skipped; a distribution does not have to ship
// all of them.
func planSources(cwd string, cfg config.Config, game, appdata *installer.Installer) error {
	plan := func(target *installer.Installer, src, dst string) error {
		if info, err := os.Stat(src); err != nil || !info.IsDir() {
			return nil
		}
		return target.PlanInstall(src, dst)
	}

	for _, dir := range cfg.ModDirs {
		if err := plan(game, filepath.Join(cwd, dir), dir); err != nil {
			return err
		}
		if optional {
			if err := plan(game, filepath.Join(cwd, cfg.OptionalDir, dir), dir); err != nil {
				return err
			}
		}
	}

	if err := plan(appdata, filepath.Join(cwd, cfg.AppDataSource), ""); err != nil {
		return err
	}
	if optional {
		if err := plan(appdata, filepath.Join(cwd, cfg.OptionalDir, cfg.AppDataSource), ""); err != nil {
			return err
		}
	}
	return nil
}
