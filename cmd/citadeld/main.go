// citadeld is the exchange process: it loads configuration, brings up
// Oracle, Titan and Sentinel through the orchestrator, starts the
// configured price feed, and serves order submission over TCP. Grounded
// on the teacher's cmd/main.go / cmd/server/server.go: signal.NotifyContext
// for graceful shutdown, a background accept loop, block on ctx.Done.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"citadel/internal/common"
	"citadel/internal/config"
	"citadel/internal/ingress"
	"citadel/internal/orchestrator"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (optional; env vars and defaults otherwise)")
	address := flag.String("address", "0.0.0.0", "ingress bind address")
	port := flag.Int("port", 9001, "ingress bind port")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error().Err(err).Msg("citadeld: configuration error")
		os.Exit(2)
	}

	symbols := make([]common.Symbol, 0, len(cfg.PriceFeedSymbols))
	for _, s := range cfg.PriceFeedSymbols {
		symbols = append(symbols, common.Symbol(s))
	}

	orch, err := orchestrator.New(cfg, symbols)
	if err != nil {
		log.Error().Err(err).Msg("citadeld: failed to initialize orchestrator")
		os.Exit(3)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	srv := ingress.New(*address, *port, orch)

	runDone := make(chan error, 1)
	go func() { runDone <- orch.Run(ctx) }()

	select {
	case <-orch.Ready():
	case <-ctx.Done():
		return
	}

	go func() {
		if err := srv.Run(ctx); err != nil {
			log.Error().Err(err).Msg("citadeld: ingress server exited")
		}
	}()

	log.Info().Str("address", *address).Int("port", *port).Msg("citadeld: running")

	<-ctx.Done()
	log.Info().Msg("citadeld: shutdown signal received, draining")

	if err := <-runDone; err != nil {
		log.Error().Err(err).Msg("citadeld: orchestrator exited with error")
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	var fatal *orchestrator.FatalError
	if errors.As(err, &fatal) {
		return fatal.ExitCode
	}
	return 1
}
