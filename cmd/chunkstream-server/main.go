package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/earthring/chunkstream/internal/api"
	"github.com/earthring/chunkstream/internal/auth"
	"github.com/earthring/chunkstream/internal/compression"
	"github.com/earthring/chunkstream/internal/config"
	"github.com/earthring/chunkstream/internal/database"
	"github.com/earthring/chunkstream/internal/generator"
	"github.com/earthring/chunkstream/internal/performance"
	"github.com/earthring/chunkstream/internal/position"
	"github.com/earthring/chunkstream/internal/processor"
	"github.com/earthring/chunkstream/internal/terrain"
	"github.com/earthring/chunkstream/internal/workerpool"
	"github.com/earthring/chunkstream/internal/world"
)

// main starts the chunk streaming server: a seeded worker pool behind the
// chunk generator, the queue processor, the world manager following the
// observer position, and the HTTP/WebSocket surface.
func main() {
	issueToken := flag.String("issue-token", "", "print a signed token for this observer ID and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	tokens := auth.NewTokenService(cfg.Auth)
	if *issueToken != "" {
		token, err := tokens.GenerateObserverToken(*issueToken)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	profiler := performance.NewProfiler(true)

	pool := workerpool.New(cfg.Workers.PoolSize,
		workerpool.WithHandler(terrain.JobGenerateBackground, terrain.Handle),
		workerpool.WithSeedTimeout(cfg.Workers.SeedTimeout),
		workerpool.WithProfiler(profiler),
	)
	defer pool.Terminate()
	if err := pool.SetSeed(ctx, cfg.World.Seed); err != nil {
		// Each generate_background job carries the seed, so workers that missed
		// it reseed on their first job.
		log.Printf("Worker seeding incomplete, workers will seed from their first job: %v", err)
	}

	gen, err := generator.New(cfg.World.Meta(), pool, generator.WithProfiler(profiler))
	if err != nil {
		log.Fatalf("Failed to create generator: %v", err)
	}

	var entities database.EntitySource = database.NoEntities{}
	if cfg.Entities.Enabled() {
		db, err := database.Open(cfg.Entities)
		if err != nil {
			log.Fatalf("Failed to open entity database: %v", err)
		}
		defer db.Close()
		storage := database.NewEntityStorage(db, cfg.Entities.Driver)
		if err := storage.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to prepare entity schema: %v", err)
		}
		entities = storage
		log.Printf("Entity storage enabled (%s)", cfg.Entities.Driver)
	}

	proc := processor.New(gen, entities,
		processor.WithBatchSize(cfg.Processor.BatchSize),
		processor.WithYielder(processor.DelayYielder(cfg.Processor.IdleDelay)),
		processor.WithProfiler(profiler),
	)

	hub := api.NewHub(api.WithTileCodec(compression.Codec(cfg.Server.TileCodec)))
	positions := position.NewObservable(position.Position{})
	manager := world.NewManager(cfg.World.Meta(), gen, proc, hub,
		world.WithRadius(cfg.World.Radius()),
		world.WithDebug(cfg.World.Debug || cfg.Logging.Debug()),
	)
	manager.Start(ctx, positions)

	router := api.NewRouter(cfg, api.Deps{
		World:       manager,
		Interaction: manager.Interaction(),
		Hub:         hub,
		Positions:   positions,
		Tokens:      tokens,
		Profiler:    profiler,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown failed: %v", err)
		}
	}()

	log.Printf("Chunkstream server starting on %s (chunk=%d tile=%d radius=%dx%d auth=%t)",
		srv.Addr, cfg.World.ChunkSize, cfg.World.TileSize,
		cfg.World.LoadRadiusX, cfg.World.LoadRadiusY, tokens.Enabled())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("Server failed: %v", err)
		stop()
	}

	manager.Close()
	if cfg.Logging.Debug() {
		profiler.LogReport()
	}
	log.Printf("Chunkstream server stopped")
}
