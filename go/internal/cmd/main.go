package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/pokersync/go/internal/poker/bridge"
	"github.com/mcdev12/pokersync/go/internal/poker/config"
	"github.com/mcdev12/pokersync/go/internal/poker/connection"
	"github.com/mcdev12/pokersync/go/internal/poker/controller"
	"github.com/mcdev12/pokersync/go/internal/poker/facade"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "poker.yaml", "path to the YAML config file")
	roomCode := flag.String("room", "", `room code to join, or "new" to create one`)
	userName := flag.String("name", "", "display name in the room")
	flag.Parse()

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(logLevel(os.Getenv("LOG_LEVEL")))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	clock := clockwork.NewRealClock()
	manager := connection.NewManager(newDialer(cfg), cfg.Connection(), clock)
	ctrl := controller.New(manager, cfg.Controller(), clock)
	room := facade.New(ctrl)

	log.Info().
		Str("server", cfg.Server.URL).
		Str("transport", cfg.Server.Transport).
		Bool("bridge", cfg.Bridge.Enabled).
		Bool("archive", cfg.Archive.Enabled).
		Msg("starting poker client")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := manager.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("connection manager stopped")
		}
	}()
	go func() {
		defer wg.Done()
		if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("room controller stopped")
		}
	}()

	if cfg.Archive.Enabled {
		stop, err := startArchive(ctx, room, &wg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to start round archive")
		}
		defer stop()
	}

	var server *http.Server
	if cfg.Bridge.Enabled {
		server = bridge.NewServer(room, bridge.Config{
			Port:           cfg.Bridge.Port,
			AllowedOrigins: cfg.Bridge.AllowedOrigins,
		})
		go func() {
			log.Info().Str("addr", server.Addr).Msg("HTTP bridge starting")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("HTTP bridge failed")
			}
		}()
	}

	if *roomCode != "" {
		if err := joinFromFlags(ctx, room, *roomCode, *userName); err != nil {
			log.Fatal().Err(err).Msg("failed to join room")
		}
	}

	quit := make(chan struct{})
	go func() {
		defer close(quit)
		if err := runREPL(ctx, os.Stdin, os.Stdout, room); err != nil {
			log.Error().Err(err).Msg("input loop stopped")
		}
	}()

	// Wait for interrupt signal or quit
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-quit:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if room.View().Joined {
		if err := room.Leave(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("failed to leave room")
		}
	}
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP bridge shutdown failed")
		}
	}

	cancel()
	wg.Wait()
	log.Info().Msg("poker client shutdown complete")
}

func newDialer(cfg *config.Config) connection.Dialer {
	if cfg.Server.Transport == config.TransportNATS {
		natsCfg := connection.DefaultNATSConfig(cfg.Server.URL)
		natsCfg.SubjectPrefix = cfg.Server.SubjectPrefix
		return connection.NewNATSDialer(natsCfg)
	}
	return connection.NewWebSocketDialer(connection.DefaultWebSocketConfig(cfg.Server.URL))
}

func joinFromFlags(ctx context.Context, room session, code, name string) error {
	if strings.EqualFold(code, "new") {
		created, err := room.CreateRoom(ctx, name)
		if err != nil {
			return err
		}
		log.Info().Str("room_code", created).Msg("created room")
		return nil
	}
	return room.Join(ctx, code, name)
}

func logLevel(s string) zerolog.Level {
	if s == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
