package database

import (
	"fmt"

	"fim-go/internal/config"
)

// Mode selects how a store is opened.
type Mode int

const (
	// ModeCreate creates a new store. An existing one is an error unless
	// overwrite is requested.
	ModeCreate Mode = iota
	// ModeOpen opens an existing store for reading and writing.
	ModeOpen
	// ModeReadOnly opens an existing store that is never modified.
	ModeReadOnly
)

// NewStoreFromConfig opens a snapshot store based on the database config type.
// path overrides cfg.Path when non-empty.
func NewStoreFromConfig(cfg config.DatabaseConfig, path string, mode Mode, overwrite bool) (*SQLiteStore, error) {
	switch cfg.Type {
	case "sqlite", "":
		if path == "" {
			path = cfg.Path
		}
		if path == "" {
			return nil, fmt.Errorf("path required for sqlite database")
		}
	case "memory":
		path = MemoryPath
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}

	switch mode {
	case ModeCreate:
		return OpenOrCreate(path, overwrite)
	case ModeOpen:
		return Open(path)
	case ModeReadOnly:
		return OpenReadOnly(path)
	default:
		return nil, fmt.Errorf("unknown open mode: %d", mode)
	}
}
