package catalog

import (
	"fmt"

	"vigilstream/pkg/config"
)

// Store is a backend serving both record kinds.
type Store interface {
	Catalog
	Users
}

// Open builds the backend selected by cfg.Driver.
func Open(cfg config.CatalogConfig) (Store, error) {
	switch cfg.Driver {
	case "memory", "":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(cfg.DSN)
	case "postgres":
		return OpenPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported catalog driver: %s", cfg.Driver)
	}
}
