package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/tokengate/tokengate/internal/api"
	"github.com/tokengate/tokengate/internal/models"
	"github.com/tokengate/tokengate/internal/resolver"
	"github.com/tokengate/tokengate/internal/statecache"
	"github.com/tokengate/tokengate/internal/store"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		logger.Debug().Err(err).Msg("no .env file loaded")
	}

	// Initialize networks from environment variables
	models.InitializeNetworks()
	logger.Info().Ints64("chain_ids", models.ListNetworkIDs()).Msg("networks configured")

	// Command line flags
	var (
		httpAddr        = flag.String("http-addr", ":8080", "HTTP server address")
		metadataDir     = flag.String("metadata-dir", "", "Directory of metadata JSON files to seed (overrides METADATA_DIR)")
		showVersion     = flag.Bool("version", false, "Show version and exit")
		verbose         = flag.Bool("v", false, "Verbose mode - log cache and RPC decisions")
		debugCollection = flag.String("debug-collection", "", "Debug a collection's live gate state and exit")
		networkID       = flag.Int64("network", 1, "Network ID used with -debug-collection")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("tokengate v1.0.0")
		fmt.Println("On-chain-gated token metadata service")
		os.Exit(0)
	}

	if *verbose {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	deployments := models.LoadDeploymentsFromEnv()
	if len(deployments) == 0 {
		logger.Fatal().Msg("no deployments configured; set DEPLOYMENT_<COLLECTION>_CHAIN_<ID> variables")
	}

	table, err := statecache.NewHandleTable(deployments, models.LoadAuthFromEnv(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build remote handles")
	}

	ttl := models.LoadTTLFromEnv()
	caches := statecache.NewCaches(table, ttl, logger)

	if *debugCollection != "" {
		debugCollectionState(caches, *debugCollection, *networkID)
		return
	}

	runServer(logger, caches, deployments, ttl, *httpAddr, *metadataDir)
}

// runServer wires the store, resolver and HTTP server, then blocks until a
// shutdown signal.
func runServer(logger zerolog.Logger, caches *statecache.Caches, deployments []models.Deployment, ttl time.Duration, httpAddr, metadataDir string) {
	ctx := context.Background()

	st, closeStore, err := buildStore(ctx, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize metadata store")
	}
	defer closeStore()

	if metadataDir == "" {
		metadataDir = os.Getenv("METADATA_DIR")
	}
	if metadataDir != "" {
		loaded, err := store.LoadDirectory(ctx, st, metadataDir)
		if err != nil {
			logger.Fatal().Err(err).Str("dir", metadataDir).Msg("failed to seed metadata")
		}
		logger.Info().Int("documents", loaded).Str("dir", metadataDir).Msg("seeded metadata")
	}

	collections := models.LoadCollectionsFromEnv(deployments)

	res, err := resolver.New(st, caches, collections, ttl, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create resolver")
	}

	// The resolver must not serve connection-dependent requests before the
	// nodes answer.
	readyCtx, cancelReady := context.WithTimeout(ctx, 30*time.Second)
	if err := caches.WaitUntilReady(readyCtx); err != nil {
		cancelReady()
		logger.Fatal().Err(err).Msg("nodes not ready")
	}
	cancelReady()

	server := api.NewServer(httpAddr, res, logger)

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	logger.Info().
		Int("collections", len(collections)).
		Dur("gate_ttl", ttl).
		Msg("tokengate service started")

	select {
	case sig := <-signalChan:
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errChan:
		logger.Error().Err(err).Msg("server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error shutting down HTTP server")
	}

	logger.Info().Msg("shutdown completed")
}

// buildStore picks the metadata backend: Postgres when DATABASE_URL is set,
// Redis when REDIS_ADDR is set, otherwise in-memory.
func buildStore(ctx context.Context, logger zerolog.Logger) (store.Store, func(), error) {
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		pg, err := store.NewPostgresStore(ctx, databaseURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Msg("using postgres metadata store")
		return pg, pg.Close, nil
	}

	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		db := 0
		if raw := os.Getenv("REDIS_DB"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil {
				db = parsed
			}
		}
		rs, err := store.NewRedisStore(ctx, redisAddr, os.Getenv("REDIS_PASSWORD"), db)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Str("addr", redisAddr).Msg("using redis metadata store")
		return rs, func() { _ = rs.Close() }, nil
	}

	logger.Info().Msg("using in-memory metadata store")
	return store.NewMemoryStore(), func() {}, nil
}

// debugCollectionState dumps a collection's live gate reads
func debugCollectionState(caches *statecache.Caches, collection string, networkID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Printf("=== DEBUGGING COLLECTION GATE ===\n")
	fmt.Printf("Collection: %s\n", collection)
	fmt.Printf("Network: %d\n", networkID)
	fmt.Printf("\n")

	if !caches.Configured(collection, networkID) {
		fmt.Printf("ERROR: no deployment configured for %s on chain %d\n", collection, networkID)
		return
	}

	fmt.Printf("=== RESULTS ===\n")

	if supply, err := caches.Supply(ctx, collection, networkID); err != nil {
		fmt.Printf("Supply: ERROR: %v\n", err)
	} else {
		fmt.Printf("Supply: %s\n", humanize.Comma(int64(supply)))
	}

	if state, err := caches.State(ctx, collection, networkID); err != nil {
		fmt.Printf("Sale state: ERROR: %v\n", err)
	} else {
		fmt.Printf("Sale state: %d\n", state)
	}

	if revealAt, err := caches.RevealTime(ctx, collection, networkID); err != nil {
		fmt.Printf("Reveal time: ERROR: %v\n", err)
	} else {
		fmt.Printf("Reveal time: %s (%s)\n", revealAt.Format(time.RFC3339), humanize.Time(revealAt))
	}
}
