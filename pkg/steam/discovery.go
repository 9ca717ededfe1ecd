// Package steam locates the game installation and its per-user appdata
// directory: Steam's own install directory, the library folders listed
// in config/libraryfolders.vdf, the game folder inside one of those
// libraries, and the game's appdata. Every step can be overridden with
// an explicit path, and every failure is a DISCOVERY error — the
// deployment engine itself never probes for directories.
package steam

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/aheadley/overviewer-bg3-mods/pkg/errors"
	"github.com/aheadley/overviewer-bg3-mods/pkg/logging"
	"github.com/aheadley/overviewer-bg3-mods/pkg/vdf"
)

// Discovery resolves the two deployment target roots. Zero-value fields
// are discovered; non-empty fields act as overrides.
type Discovery struct {
	// Platform supplies OS-specific locations. May be nil when both
	// GameDir and AppDataDir are overridden.
	Platform Platform

	// SteamDir overrides Steam's install directory.
	SteamDir string

	// GameDir overrides the game installation directory.
	GameDir string

	// AppDataDir overrides the game's per-user data directory.
	AppDataDir string

	// GameFolder is the game's directory name under steamapps/common.
	GameFolder string

	// AppID is the game's Steam application id.
	AppID string

	// VendorPath is the game's appdata path relative to the local
	// application data root.
	VendorPath string

	libraries []string
}

// Paths is the discovery result: the two absolute target roots.
type Paths struct {
	Game    string
	AppData string
}

// Discover resolves both target roots, honoring overrides.
func (d *Discovery) Discover() (Paths, error) {
	logger := logging.GetLogger("steam")

	game, err := d.discoverGame()
	if err != nil {
		return Paths{}, err
	}
	logger.Info().Str("path", game).Msg("Found game")

	appdata, err := d.discoverAppData()
	if err != nil {
		return Paths{}, err
	}
	if info, err := os.Stat(appdata); err != nil || !info.IsDir() {
		return Paths{}, errors.Newf(errors.ErrDiscovery, "path is not a directory: %s", appdata)
	}
	logger.Info().Str("path", appdata).Msg("Found appdata")

	return Paths{Game: game, AppData: appdata}, nil
}

func (d *Discovery) discoverGame() (string, error) {
	if d.GameDir != "" {
		return d.GameDir, nil
	}
	libraries, err := d.Libraries()
	if err != nil {
		return "", err
	}
	logger := logging.GetLogger("steam")
	for _, library := range libraries {
		logger.Debug().Str("library", library).Msg("Searching library")
		trial := filepath.Join(library, "steamapps", "common", d.GameFolder)
		if info, err := os.Stat(trial); err == nil && info.IsDir() {
			return trial, nil
		}
	}
	return "", errors.Newf(errors.ErrDiscovery, "could not find %s in any steam library", d.GameFolder)
}

func (d *Discovery) discoverAppData() (string, error) {
	if d.AppDataDir != "" {
		return d.AppDataDir, nil
	}
	if d.Platform == nil {
		return "", errors.New(errors.ErrDiscovery, "no platform support; use the appdata path override")
	}
	libraries, err := d.Libraries()
	if err != nil {
		return "", err
	}
	return d.Platform.AppData(libraries, d.AppID, d.VendorPath)
}

// Libraries returns every existing Steam library directory listed in
// config/libraryfolders.vdf. The result is cached.
func (d *Discovery) Libraries() ([]string, error) {
	if d.libraries != nil {
		return d.libraries, nil
	}

	steamDir, err := d.steamDir()
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(steamDir, "config", "libraryfolders.vdf")
	f, err := os.Open(configPath)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrDiscovery,
			"could not read steam library configuration %s", configPath)
	}
	defer func() { _ = f.Close() }()

	doc, err := vdf.Parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrDiscovery,
			"could not parse steam library configuration %s", configPath)
	}

	folders, ok := doc.Child("libraryfolders")
	if !ok {
		return nil, errors.Newf(errors.ErrDiscovery,
			"no libraryfolders section in %s", configPath)
	}

	// Keys are decimal indices; walk them in order so the search is
	// deterministic.
	keys := make([]string, 0, len(folders))
	for k := range folders {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) < len(keys[j])
		}
		return keys[i] < keys[j]
	})

	var libraries []string
	for _, k := range keys {
		entry, ok := folders.Child(k)
		if !ok {
			continue
		}
		path, ok := entry.String("path")
		if !ok {
			continue
		}
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			libraries = append(libraries, path)
		}
	}

	d.libraries = libraries
	return libraries, nil
}

func (d *Discovery) steamDir() (string, error) {
	if d.SteamDir != "" {
		if info, err := os.Stat(d.SteamDir); err != nil || !info.IsDir() {
			return "", errors.Newf(errors.ErrDiscovery, "path is not a directory: %s", d.SteamDir)
		}
		return d.SteamDir, nil
	}
	if d.Platform == nil {
		return "", errors.New(errors.ErrDiscovery, "no platform support; use the steam path override")
	}
	return d.Platform.SteamRoot()
}
