package config

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the base directory.
const HomeEnv = "KUSTOM_HOME"

// Paths are the on-disk locations kustom reads and writes. Everything lives
// under Base, which defaults to ~/.kustom.
type Paths struct {
	Base   string
	Config string // config.yaml
	Env    string // .env loaded before the config
	Data   string // database directory
	Logs   string
}

// ResolvePaths derives Paths from $KUSTOM_HOME or the user's home directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv(HomeEnv)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, ".kustom")
	}

	under := func(name string) string { return filepath.Join(base, name) }
	return Paths{
		Base:   base,
		Config: under("config.yaml"),
		Env:    under(".env"),
		Data:   under("data"),
		Logs:   under("logs"),
	}, nil
}

// DatabasePath is store.path when set, otherwise data/kustom.db.
func (p Paths) DatabasePath(cfg StoreConfig) string {
	if cfg.Path != "" {
		return cfg.Path
	}
	return filepath.Join(p.Data, "kustom.db")
}

// EnsureDirs creates Base, Data and Logs with owner-only permissions.
func (p Paths) EnsureDirs() error {
	for _, dir := range []string{p.Base, p.Data, p.Logs} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return nil
}
