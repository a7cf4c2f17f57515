package store

import (
	"github.com/docsift/docsift/internal/config"
	errs "github.com/docsift/docsift/internal/errors"
)

// New creates the metadata store selected by cfg.MetadataBackend.
func New(cfg *config.Config) (MetadataStore, error) {
	switch cfg.MetadataBackend {
	case config.MetadataBackendSQLite:
		return NewSQLiteStore(cfg.Storage.SQLitePath)
	case config.MetadataBackendPostgres:
		return nil, errs.BackendUnavailable("metadata backend %q is not built in this binary", cfg.MetadataBackend)
	default:
		return nil, errs.Validation("unknown metadata backend %q", cfg.MetadataBackend)
	}
}
