package main

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ehr/notesync/internal/config"
	"github.com/ehr/notesync/internal/domain/importjob"
	"github.com/ehr/notesync/internal/domain/note"
	"github.com/ehr/notesync/internal/domain/person"
	"github.com/ehr/notesync/internal/importer"
	"github.com/ehr/notesync/internal/legacy"
	"github.com/ehr/notesync/internal/platform/db"
)

// app holds the repositories and the orchestrator built from them.
type app struct {
	persons      person.Repository
	notes        note.Repository
	jobs         importjob.Repository
	orchestrator *importer.Orchestrator
}

func newLegacySource(cfg *config.Config) legacy.Source {
	opts := []legacy.ClientOption{
		legacy.WithHTTPClient(&http.Client{Timeout: cfg.LegacyTimeout}),
	}
	if cfg.LegacySigningKey != "" {
		opts = append(opts, legacy.WithSigningKey(cfg.LegacyClientID, []byte(cfg.LegacySigningKey)))
	}
	return legacy.NewClient(cfg.LegacyBaseURL, opts...)
}

func newPGApp(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, source legacy.Source) *app {
	tx := db.NewTransactor(pool)
	return assemble(cfg, logger, source, tx,
		person.NewPersonRepoPG(pool),
		note.NewNoteRepoPG(pool),
		note.NewAuthorRepoPG(pool),
		importjob.NewJobRepoPG(pool),
	)
}

func newMemoryApp(cfg *config.Config, logger zerolog.Logger, source legacy.Source) *app {
	return assemble(cfg, logger, source, db.NoTx,
		person.NewMemoryRepository(),
		note.NewMemoryRepository(),
		note.NewMemoryAuthorRepository(),
		importjob.NewMemoryRepository(),
	)
}

func assemble(
	cfg *config.Config,
	logger zerolog.Logger,
	source legacy.Source,
	tx db.Transactor,
	persons person.Repository,
	notes note.Repository,
	authors note.AuthorRepository,
	jobs importjob.Repository,
) *app {
	return &app{
		persons: persons,
		notes:   notes,
		jobs:    jobs,
		orchestrator: importer.NewOrchestrator(
			source,
			person.NewReconciler(persons, tx, logger),
			note.NewSyncer(notes, authors, tx, logger),
			jobs,
			importjob.NewReporter(jobs, logger),
			cfg.LookbackYears,
			logger,
		),
	}
}
