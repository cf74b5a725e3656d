package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"devicemonitor/internal/cli"
	"devicemonitor/internal/config"
	"devicemonitor/internal/logger"
	"devicemonitor/internal/monitor"
	"devicemonitor/internal/server"
	"devicemonitor/internal/storage"
)

const cmdRunOnce = "run-once"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("devicemonitor", flag.ContinueOnError)
	var (
		configPath   = fs.String("config", "config.yaml", "path to configuration file (YAML)")
		registryPath = fs.String("registry", "", "override the device registry file")
		logPath      = fs.String("log", "", "override the availability log file")
		addr         = fs.String("addr", "", "serve the status API on this address in continuous mode")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	if *registryPath != "" {
		cfg.RegistryPath = *registryPath
	}
	if *logPath != "" {
		cfg.LogPath = *logPath
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		return 1
	}

	store, err := storage.NewRegistryStore(cfg.RegistryPath)
	if err != nil {
		log.Error().Err(err).Msg("initialise registry")
		return 1
	}

	rest := fs.Args()
	if len(rest) > 0 && rest[0] != cmdRunOnce {
		if err := cli.New(store, os.Stdin, os.Stdout).Run(rest); err != nil {
			log.Error().Err(err).Str("command", rest[0]).Msg("command failed")
			return 1
		}
		return 0
	}

	availability, err := storage.NewAvailabilityLog(cfg.LogPath)
	if err != nil {
		log.Error().Err(err).Msg("initialise availability log")
		return 1
	}

	prober := monitor.NewPingProber(cfg.ProbeTimeout(),
		monitor.WithFallbackPort(cfg.Probe.FallbackPort),
		monitor.WithProberLogger(log),
	)
	cycle := monitor.NewCycle(store, prober, availability,
		monitor.WithConcurrency(cfg.Probe.Concurrency),
		monitor.WithCycleLogger(log),
	)
	mon := monitor.New(cycle, cfg.Interval(), monitor.WithLogger(log))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(rest) > 0 {
		if _, err := mon.RunOnce(ctx); err != nil {
			log.Error().Err(err).Msg("monitor cycle failed")
			return 1
		}
		return 0
	}

	log.Info().
		Str("registry", cfg.RegistryPath).
		Str("log", cfg.LogPath).
		Dur("interval", cfg.Interval()).
		Msg("device monitor starting")

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var served chan struct{}
	if cfg.HTTP.Addr != "" {
		srv := server.New(cfg.HTTP.Addr, store, availability, log)
		mon.OnCycle(srv.Publish)
		served = make(chan struct{})
		go func() {
			defer close(served)
			serve(runCtx, srv, cfg.HTTP.Addr, log)
		}()
	}

	err = mon.Run(runCtx)
	cancelRun()
	if served != nil {
		<-served
	}
	if err != nil {
		log.Error().Err(err).Msg("monitor stopped")
		return 1
	}
	return 0
}

// serve runs the status API until ctx is done and then shuts it down,
// returning only once the shutdown has finished.
func serve(ctx context.Context, srv *server.Server, addr string, log zerolog.Logger) {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()
	log.Info().Str("addr", addr).Msg("status API listening")

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("status API stopped")
		}
		return
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
}
