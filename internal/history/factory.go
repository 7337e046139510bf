package history

import (
	"fmt"

	"github.com/nextlevelbuilder/clipbridge/internal/config"
)

// Open builds the history store the configuration selects, pointed at
// the configured (or derived) path.
func Open(cfg *config.Config) (Store, error) {
	opts := Options{
		Cap:               cfg.History.MaxEntries,
		TrimExemptsPinned: cfg.History.TrimExemptsPinned,
	}
	switch cfg.History.Backend {
	case "sqlite":
		return NewSQLiteStore(cfg.HistoryPath(), opts)
	case "", "file":
		return NewFileStore(cfg.HistoryPath(), opts)
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.History.Backend)
	}
}
