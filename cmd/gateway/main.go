package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/studylane/go-session-gateway/credstore"
	"github.com/studylane/go-session-gateway/credstore/boltstore"
	"github.com/studylane/go-session-gateway/credstore/redisstore"
	"github.com/studylane/go-session-gateway/gateway"
	"github.com/studylane/go-session-gateway/identity"
	"github.com/studylane/go-session-gateway/internal/config"
	"github.com/studylane/go-session-gateway/rotation"
	"github.com/studylane/go-session-gateway/server"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatal().Err(err).Msg("Error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	logger := newLogger(c)

	store, cleanup, err := newStore(c)
	if err != nil {
		return fmt.Errorf("newStore: %w", err)
	}
	defer cleanup()

	backend := identity.NewClient(c.GetIdentityBaseURL(), c.GetIdentityTimeout(), logger)
	rotations := rotation.NewCoordinator(store, backend, c.GetRefreshTTL(), logger)
	gatewayService, err := gateway.NewService(store, backend, rotations, c.GetRefreshTTL(), logger)
	if err != nil {
		return fmt.Errorf("gateway.NewService: %w", err)
	}

	srv, err := server.New(c, gatewayService, logger)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv}
	go listenAndServe(httpServer, logger)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

func newLogger(c config.Config) zerolog.Logger {
	if c.GetEnv() == "DEV" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func newStore(c config.Config) (credstore.Store, func(), error) {
	switch c.GetStoreBackend() {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     c.GetRedisAddr(),
			Password: c.GetRedisPassword(),
			DB:       c.GetRedisDB(),
		})
		return redisstore.New(rdb, c.GetRefreshTTL()), func() { _ = rdb.Close() }, nil
	case "bolt":
		store, err := boltstore.Open(c.GetBoltPath())
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case "memory":
		return credstore.NewMemory(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", c.GetStoreBackend())
	}
}

func listenAndServe(server *http.Server, logger zerolog.Logger) {
	logger.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
