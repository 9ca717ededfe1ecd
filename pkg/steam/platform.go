package steam

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/adrg/xdg"
	"github.com/aheadley/overviewer-bg3-mods/pkg/errors"
)

// Platform locates the per-OS directories the discovery needs. One
// implementation is selected at startup and passed into Discovery
// explicitly.
type Platform interface {
	// SteamRoot returns Steam's main installation directory, the one
	// holding config/libraryfolders.vdf.
	SteamRoot() (string, error)

	// AppData returns the game's per-user data directory. On platforms
	// where the game runs under Proton it lives inside a library's
	// compatdata prefix, so the known libraries are provided.
	AppData(libraries []string, appID, vendorPath string) (string, error)
}

// CurrentPlatform selects the Platform for the running OS. Unsupported
// platforms get a DISCOVERY error; the CLI can still run with explicit
// path overrides.
func CurrentPlatform() (Platform, error) {
	switch runtime.GOOS {
	case "linux":
		return linuxPlatform{}, nil
	case "windows":
		return windowsPlatform{}, nil
	default:
		return nil, errors.Newf(errors.ErrDiscovery,
			"platform %s not supported, supply paths manually", runtime.GOOS)
	}
}

type linuxPlatform struct{}

func (linuxPlatform) SteamRoot() (string, error) {
	trial := filepath.Join(xdg.DataHome, "Steam")
	if info, err := os.Stat(trial); err == nil && info.IsDir() {
		return trial, nil
	}
	return "", errors.Newf(errors.ErrDiscovery, "cannot find steam under %s", trial)
}

func (linuxPlatform) AppData(libraries []string, appID, vendorPath string) (string, error) {
	// Under Proton the game writes its appdata inside the wine prefix
	// of whichever library it is installed in.
	winePath := filepath.Join(
		"compatdata", appID, "pfx", "drive_c",
		"users", "steamuser", "AppData", "Local", vendorPath,
	)
	for _, library := range libraries {
		trial := filepath.Join(library, "steamapps", winePath)
		if info, err := os.Stat(trial); err == nil && info.IsDir() {
			return trial, nil
		}
	}
	return "", errors.New(errors.ErrDiscovery, "cannot find appdata folder in any steam library")
}

type windowsPlatform struct{}

func (windowsPlatform) SteamRoot() (string, error) {
	var trials []string
	for _, env := range []string{"ProgramFiles(x86)", "ProgramFiles"} {
		if base := os.Getenv(env); base != "" {
			trials = append(trials, filepath.Join(base, "Steam"))
		}
	}
	for _, trial := range trials {
		if info, err := os.Stat(trial); err == nil && info.IsDir() {
			return trial, nil
		}
	}
	return "", errors.New(errors.ErrDiscovery, "cannot find steam in the usual install locations")
}

func (windowsPlatform) AppData(_ []string, _, vendorPath string) (string, error) {
	appdata := os.Getenv("LOCALAPPDATA")
	if appdata == "" {
		return "", errors.New(errors.ErrDiscovery, "LOCALAPPDATA is not set")
	}
	trial := filepath.Join(appdata, vendorPath)
	if info, err := os.Stat(trial); err == nil && info.IsDir() {
		return trial, nil
	}
	return "", errors.Newf(errors.ErrDiscovery, "cannot find appdata folder at %s", trial)
}
