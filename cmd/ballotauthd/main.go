// Command ballotauthd is the voting authority's process entrypoint: it loads
// configuration, opens the persistence layer, starts the crypto worker pool,
// wires C3-C6 together, and serves the HTTP API until asked to stop. The
// Start/Stop lifecycle and signal-driven shutdown are grounded on the
// teacher's service.APIService (service/api_service.go): a small struct
// wrapping a cancel func, generalized here across every long-lived
// component instead of the API server alone.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/civitas-vote/ballotauth/api"
	"github.com/civitas-vote/ballotauth/config"
	"github.com/civitas-vote/ballotauth/cryptopool"
	"github.com/civitas-vote/ballotauth/election"
	"github.com/civitas-vote/ballotauth/log"
	"github.com/civitas-vote/ballotauth/store"
	"github.com/civitas-vote/ballotauth/tally"
	"github.com/civitas-vote/ballotauth/token"
	"github.com/civitas-vote/ballotauth/voting"
)

func main() {
	configFile := flag.String("config", "", "path to an optional config file (env VOTEAUTH_* always applies)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ballotauthd: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.LogLevel, cfg.LogOutput, nil)

	// runID has no effect on the protocol; it only tags every log line this
	// process emits so operators can separate interleaved deployments in a
	// shared log sink.
	runID := uuid.NewString()
	log.Infow("starting ballotauthd", "run_id", runID, "host", cfg.Host, "port", cfg.Port, "crypto_workers", cfg.CryptoWorkers)

	if err := run(cfg, runID); err != nil {
		log.Fatalf("ballotauthd: %v", err)
	}
}

func run(cfg *config.Config, runID string) error {
	st, err := store.Open(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warnw("close store failed", "error", err, "run_id", runID)
		}
	}()

	pool := cryptopool.New(cfg.CryptoWorkers)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("start crypto pool: %w", err)
	}
	defer func() {
		if err := pool.Stop(); err != nil {
			log.Warnw("stop crypto pool failed", "error", err, "run_id", runID)
		}
	}()

	elections := election.New(st, pool)
	tokens := token.New(st, elections, pool)
	votes := voting.New(st)
	tallies := tally.New(st)

	a, err := api.New(&api.Config{
		Host:        cfg.Host,
		Port:        cfg.Port,
		CORSOrigins: cfg.CORSOrigins,
		Elections:   elections,
		Tokens:      tokens,
		Votes:       votes,
		Tallies:     tallies,
	})
	if err != nil {
		return fmt.Errorf("start API: %w", err)
	}
	_ = a

	waitForShutdownSignal()
	log.Infow("shutting down ballotauthd", "run_id", runID)
	return nil
}

// waitForShutdownSignal blocks until SIGINT or SIGTERM arrives, then gives
// in-flight requests a short grace window before the deferred cleanup in run
// tears down the crypto pool and the store.
func waitForShutdownSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	time.Sleep(200 * time.Millisecond)
}
