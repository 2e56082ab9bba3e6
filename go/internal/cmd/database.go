package main

import (
	"context"
	"errors"

	"github.com/mcdev12/livequiz/go/internal/archive"
	"github.com/mcdev12/livequiz/go/internal/catalog"
	"github.com/mcdev12/livequiz/go/internal/dbconfig"
	"github.com/mcdev12/livequiz/go/internal/session"
	"github.com/rs/zerolog/log"
)

// setupCatalog prefers a YAML file and falls back to the Postgres catalog.
// The returned closer is nil when there is no connection to release.
func setupCatalog(cfg *Config) (session.Catalog, func(), error) {
	if cfg.catalogFile != "" {
		mem, err := catalog.LoadFile(cfg.catalogFile)
		if err != nil {
			return nil, nil, err
		}
		log.Info().
			Str("file", cfg.catalogFile).
			Int("games", len(mem.Games())).
			Msg("loaded catalog file")
		return mem, nil, nil
	}
	if !dbconfig.Configured() {
		return nil, nil, errors.New("no catalog: set --catalog or DB_HOST/DB_NAME")
	}
	store, err := catalog.OpenGorm(dbconfig.NewConfigFromEnv().DSN())
	if err != nil {
		return nil, nil, err
	}
	return store, closeCatalog(store), nil
}

func closeCatalog(store *catalog.GormStore) func() {
	return func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close catalog database")
		}
	}
}

// setupArchive returns nil when no database is configured; completed sessions
// are then only kept in memory until reaped.
func setupArchive(ctx context.Context) (*archive.Store, error) {
	if !dbconfig.Configured() {
		log.Warn().Msg("no database configured, completed sessions will not be archived")
		return nil, nil
	}
	return archive.Open(ctx, dbconfig.NewConfigFromEnv().DSN())
}
