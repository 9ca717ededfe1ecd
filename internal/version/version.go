package version

// Build information set by ldflags
var (
	Version = "dev"     // -X github.com/aheadley/overviewer-bg3-mods/internal/version.Version={{.Version}}
	Commit  = "unknown" // -X github.com/aheadley/overviewer-bg3-mods/internal/version.Commit={{.Commit}}
	Date    = "unknown" // -X github.com/aheadley/overviewer-bg3-mods/internal/version.Date={{.Date}}
)
