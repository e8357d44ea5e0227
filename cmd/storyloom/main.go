package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/DaanHessen/storyloom/internal/audio"
	"github.com/DaanHessen/storyloom/internal/backend"
	"github.com/DaanHessen/storyloom/internal/engine"
	"github.com/DaanHessen/storyloom/internal/game"
	"github.com/DaanHessen/storyloom/internal/store"
	"github.com/DaanHessen/storyloom/internal/ui"
	"github.com/DaanHessen/storyloom/internal/util"
	"github.com/DaanHessen/storyloom/internal/visual"
)

var version = "0.1.0-alpha"

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg, err := util.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	backendURL := flag.String("backend", cfg.BackendURL, "Content backend base URL")
	dsn := flag.String("dsn", cfg.DSN, "PostgreSQL DSN for the postgres cache driver")
	cacheDriver := flag.String("cache", cfg.CacheDriver, "Save cache driver: file|postgres|redis")
	seed := flag.Int64("seed", cfg.Seed, "Session seed (clock if omitted)")
	palette := flag.String("palette", cfg.Palette, "Force a color palette instead of following the story tone")
	noSound := flag.Bool("no-sound", !cfg.Sound, "Disable sound effects")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "storyloom [--backend URL] [--cache file|postgres|redis] [--dsn DSN] [--seed N] [--palette NAME] [--no-sound] | migrate up|down | saves | version\n")
	}
	flag.Parse()

	cfg.BackendURL = *backendURL
	cfg.DSN = *dsn
	cfg.CacheDriver = *cacheDriver
	cfg.Seed = *seed
	cfg.Palette = *palette
	cfg.Sound = !*noSound
	if err := cfg.Finalize(); err != nil {
		log.Fatal(err)
	}

	args := flag.Args()
	if len(args) > 0 {
		switch args[0] {
		case "version":
			fmt.Println("storyloom", version)
			return
		case "migrate":
			if len(args) < 2 {
				log.Fatal("migrate requires 'up' or 'down'")
			}
			runMigrate(cfg.DSN, args[1])
			return
		case "saves":
			if err := printSaves(cfg); err != nil {
				log.Fatal(err)
			}
			return
		default:
			flag.Usage()
			os.Exit(2)
		}
	}

	logger, err := util.NewLogger(cfg.LogLevel, cfg.LogEncoding, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Exited with error", zap.Error(err))
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg util.Config, logger *zap.Logger) error {
	if cfg.CacheDriver == util.CachePostgres {
		// Ensure migrations are present and applied before opening UI
		mig, err := store.NewMigrator(cfg.DSN, "")
		if err != nil {
			return fmt.Errorf("migrations init failed: %w", err)
		}
		migCtx, cancelMig := context.WithTimeout(ctx, 30*time.Second)
		defer cancelMig()
		if err := mig.Up(migCtx); err != nil && !errors.Is(err, store.ErrNoChange) {
			return fmt.Errorf("migrations failed: %w", err)
		}
	}

	kv, closeKV, err := store.OpenKV(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open save cache: %w", err)
	}
	defer func() { _ = closeKV() }()

	client := backend.NewClient(cfg.BackendURL, logger)
	saves := store.NewBridge(client, store.NewCache(kv), logger)
	vm := visual.NewManager(cfg.BackendURL, client.HTTPClient(), logger)
	seed := engine.SeedOrClock(cfg.Seed)
	logger.Info("Session started",
		zap.String("version", version),
		zap.String("backend", cfg.BackendURL),
		zap.String("seed", seed.Text))
	ctrl := game.NewController(client, vm, game.Config{BackendURL: cfg.BackendURL, Seed: seed}, logger)

	var sound audio.Player = audio.Silent{}
	if cfg.Sound {
		sm := audio.NewSoundManager()
		if err := sm.Initialize(); err != nil {
			logger.Warn("Audio unavailable", zap.Error(err))
		} else {
			defer sm.Cleanup()
			sound = sm
		}
	}

	return ui.Run(ctx, ui.Deps{
		Controller: ctrl,
		Saves:      saves,
		Sound:      sound,
		Logger:     logger,
		Palette:    cfg.Palette,
		Version:    version,
	})
}

func runMigrate(dsn, action string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	migrator, err := store.NewMigrator(dsn, "")
	if err != nil {
		log.Fatal(err)
	}
	switch action {
	case "up":
		if err := migrator.Up(ctx); err != nil && !errors.Is(err, store.ErrNoChange) {
			log.Fatal(err)
		}
		fmt.Println("Migrations applied")
	case "down":
		if err := migrator.Down(ctx); err != nil && !errors.Is(err, store.ErrNoChange) {
			log.Fatal(err)
		}
		fmt.Println("Migrations rolled back")
	default:
		log.Fatal("unknown migrate action; use up|down")
	}
}

// printSaves lists the local save cache without starting the UI.
func printSaves(cfg util.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	kv, closeKV, err := store.OpenKV(ctx, cfg, zap.NewNop())
	if err != nil {
		return err
	}
	defer func() { _ = closeKV() }()
	recs, err := store.NewCache(kv).List(ctx)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("No cached saves")
		return nil
	}
	for _, r := range recs {
		fmt.Printf("%-15s  %-16s  %s\n", r.Name, r.Time, r.Progress)
	}
	return nil
}
