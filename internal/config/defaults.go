package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	StoreJSON   = "json"
	StoreSQLite = "sqlite"
)

const (
	defaultLogDir              = "~/.local/share/folio/logs"
	defaultSourceURL           = "http://www.crystalkeep.com/magic/rules/oracle/oracle-all.txt"
	defaultRefreshIntervalDays = 30
	defaultFetchTimeoutSeconds = 120
	defaultStore               = StoreJSON
	defaultImageSearchURL      = "http://magiccards.info/query"
	defaultImageTimeoutSeconds = 20
	defaultImageCacheTTL       = 60
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheDir: defaultCacheDir(),
			LogDir:   defaultLogDir,
		},
		Rulings: Rulings{
			SourceURL:           defaultSourceURL,
			RefreshIntervalDays: defaultRefreshIntervalDays,
			FetchTimeoutSeconds: defaultFetchTimeoutSeconds,
			Store:               defaultStore,
		},
		Images: Images{
			Enabled:        true,
			SearchURL:      defaultImageSearchURL,
			TimeoutSeconds:  defaultImageTimeoutSeconds,
			CacheTTLMinutes: defaultImageCacheTTL,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

func defaultCacheDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "folio")
	}
	return "~/.cache/folio"
}
