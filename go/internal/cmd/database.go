package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/pokersync/go/internal/dbconfig"
	"github.com/mcdev12/pokersync/go/internal/poker/archive"
	"github.com/mcdev12/pokersync/go/internal/poker/facade"
	"github.com/rs/zerolog/log"
)

// startArchive connects to Postgres and feeds revealed rounds to the archive
// worker. The returned func releases the subscription and the pool.
func startArchive(ctx context.Context, room *facade.Facade, wg *sync.WaitGroup) (func(), error) {
	dbCfg := dbconfig.NewConfigFromEnv()

	recorder, err := archive.NewPostgresRecorder(ctx, dbCfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("archive database %s: %w", dbCfg.Redacted(), err)
	}
	if err := recorder.EnsureSchema(ctx); err != nil {
		recorder.Close()
		return nil, err
	}

	log.Info().
		Str("database", dbCfg.Database).
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Msg("connected to archive database")

	views, unsubscribe := room.Subscribe()
	worker := archive.NewWorker(recorder, clockwork.NewRealClock())

	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		if err := worker.Run(ctx, views); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("round archive worker stopped")
		}
	}()

	return func() {
		unsubscribe()
		<-done
		recorder.Close()
	}, nil
}
