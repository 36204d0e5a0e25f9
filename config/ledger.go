package config

import (
	"fmt"

	"github.com/kilianp07/gridsim/core/ledger/store"
)

// LedgerConfig selects and tunes the ledger store.
type LedgerConfig struct {
	Enabled bool `json:"enabled"`
	// Backend is one of "memory", "jsonl", "rotating" or "sqlite".
	Backend string `json:"backend"`
	// Path is the file or database location for persistent backends.
	Path string `json:"path"`
	// MaxSizeMB, MaxBackups and MaxAgeDays tune the rotating backend.
	MaxSizeMB  int `json:"max_size_mb"`
	MaxBackups int `json:"max_backups"`
	MaxAgeDays int `json:"max_age_days"`
	// Authorize grants every grid entity its ledger role at startup. It
	// defaults to true.
	Authorize *bool `json:"authorize"`
}

func (c *LedgerConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = store.BackendMemory
	}
	if c.Path == "" {
		switch c.Backend {
		case store.BackendJSONL, store.BackendRotating:
			c.Path = "ledger.jsonl"
		case store.BackendSQLite:
			c.Path = "ledger.db"
		}
	}
	if c.Backend == store.BackendRotating && c.MaxSizeMB == 0 {
		c.MaxSizeMB = 10
	}
	if c.Authorize == nil {
		enabled := true
		c.Authorize = &enabled
	}
}

func (c LedgerConfig) Validate() error {
	switch c.Backend {
	case store.BackendMemory:
		return nil
	case store.BackendJSONL, store.BackendRotating, store.BackendSQLite:
		if c.Path == "" {
			return fmt.Errorf("ledger.path is required for the %s backend", c.Backend)
		}
		return nil
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Backend)
	}
}

// AutoAuthorize reports whether roles are granted at startup.
func (c LedgerConfig) AutoAuthorize() bool { return c.Authorize == nil || *c.Authorize }

// StoreOptions converts the section to store.Options.
func (c LedgerConfig) StoreOptions() store.Options {
	return store.Options{
		Backend:    c.Backend,
		Path:       c.Path,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
	}
}
