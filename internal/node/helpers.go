package node

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Klingon-tech/powrace/config"
	"github.com/Klingon-tech/powrace/internal/storage"
)

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// openJournalDB opens the storage backing the block journal.
func openJournalDB(cfg config.JournalConfig) (storage.DB, error) {
	switch cfg.Backend {
	case config.JournalMemory, "":
		return storage.NewMemory(), nil
	case config.JournalBadger:
		path := expandHome(cfg.Path)
		if path != "" {
			if err := os.MkdirAll(path, 0755); err != nil {
				return nil, fmt.Errorf("creating journal dir: %w", err)
			}
		}
		db, err := storage.NewBadger(path)
		if err != nil {
			return nil, fmt.Errorf("open journal at %q: %w", path, err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported journal backend: %s", cfg.Backend)
	}
}

func closeDB(db storage.DB) {
	if db != nil {
		db.Close()
	}
}
