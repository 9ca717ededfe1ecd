// Package config holds the tool configuration: which source directories
// get deployed where, which target paths must never be deleted, and how
// the game installation is located. Values come from compiled-in
// defaults, optionally overridden by a bg3mods.toml file next to the
// mod sources.
package config

import (
	"os"
	"path/filepath"

	"github.com/aheadley/overviewer-bg3-mods/pkg/errors"
	"github.com/aheadley/overviewer-bg3-mods/pkg/logging"
	toml "github.com/pelletier/go-toml/v2"
)

// FileName is the optional per-checkout configuration file.
const FileName = "bg3mods.toml"

// Config describes what to deploy and how to find the targets.
type Config struct {
	// ModDirs are the source directories copied into the game root,
	// preserving their names (Data -> <game>/Data).
	ModDirs []string `toml:"mod_dirs"`

	// OptionalDir holds an alternate tree of the same layout, deployed
	// only when requested.
	OptionalDir string `toml:"optional_dir"`

	// AppDataSource is the source directory deployed into the game's
	// per-user appdata root.
	AppDataSource string `toml:"appdata_source"`

	// Protected are target paths that may be overwritten (with backup)
	// but never deleted by an undo pass.
	Protected []string `toml:"protected"`

	// BackupSuffix is appended to a path when an existing file is
	// renamed aside before an overwrite.
	BackupSuffix string `toml:"backup_suffix"`

	// GameFolder is the game's directory name under steamapps/common.
	GameFolder string `toml:"game_folder"`

	// SteamAppID is the game's Steam application id, used to locate the
	// Proton prefix on Linux.
	SteamAppID string `toml:"steam_app_id"`

	// AppDataPath is the vendor path of the game's appdata directory,
	// relative to the platform's local application data root.
	AppDataPath string `toml:"appdata_path"`
}

// Default returns the compiled-in configuration for Baldur's Gate 3.
func Default() Config {
	return Config{
		ModDirs:       []string{"Data", "bin"},
		OptionalDir:   "OPTIONAL-MODS",
		AppDataSource: "Baldur's Gate 3",
		Protected: []string{
			"bin/bink2w64.dll",
			"bin/bink2w64_original.dll",
		},
		BackupSuffix: ".bg3mods-bak",
		GameFolder:   "Baldurs Gate 3",
		SteamAppID:   "1086940",
		AppDataPath:  filepath.Join("Larian Studios", "Baldur's Gate 3"),
	}
}

// Load reads the configuration file at path and merges it over the
// defaults. A missing file yields the defaults unchanged.
func Load(path string) (Config, error) {
	logger := logging.GetLogger("config")
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug().Str("path", path).Msg("No config file, using defaults")
			return cfg, nil
		}
		return Config{}, errors.Wrapf(err, errors.ErrConfigLoad, "failed to read config file %s", path)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, errors.ErrConfigParse, "failed to parse %s", path)
	}

	logger.Debug().
		Str("path", path).
		Strs("modDirs", cfg.ModDirs).
		Int("protected", len(cfg.Protected)).
		Msg("Config loaded")

	return cfg, nil
}

// LoadDir loads the configuration file from the given directory,
// falling back to defaults when absent.
func LoadDir(dir string) (Config, error) {
	return Load(filepath.Join(dir, FileName))
}
