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
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-tenant-client/internal/config"
	"github.com/jrsteele09/go-tenant-client/internal/logging"
	"github.com/jrsteele09/go-tenant-client/mockbackend"
	"github.com/jrsteele09/go-tenant-client/tenants"
)

const (
	addrVar      = "MOCKBACKEND_ADDR"
	demoEmail    = "demo@example.com"
	demoPassword = "Passw0rd"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("error running mock backend")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("mock backend stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	logger := logging.Init(os.Stderr, c.GetLogLevel(), true)
	displayAppname("mockbackend")

	backend := mockbackend.New(mockbackend.WithEnv(c.GetEnv()), mockbackend.WithLogger(logger))
	if err := seed(backend, logger); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              config.GetEnv(addrVar, ":8080"),
		Handler:           backend,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() { errs <- listenAndServe(server, logger) }()

	select {
	case err := <-errs:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(server)
}

func seed(backend *mockbackend.Server, logger zerolog.Logger) error {
	_, err := backend.SeedUser(demoEmail, "Demo User", demoPassword,
		tenants.Tenant{ID: "ws-demo", Name: "Demo", Slug: "demo", Role: "owner"},
		tenants.Tenant{ID: "ws-shared", Name: "Shared", Slug: "shared", Role: "member"},
	)
	if err != nil {
		return fmt.Errorf("seed demo user: %w", err)
	}
	logger.Info().Str("email", demoEmail).Str("password", demoPassword).Msg("seeded demo user")
	return nil
}

func listenAndServe(server *http.Server, logger zerolog.Logger) error {
	logger.Info().Str("addr", server.Addr).Msg("mock backend listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
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
