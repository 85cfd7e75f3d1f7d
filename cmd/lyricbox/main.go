package main

import (
	"context"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lyricbox/cfg"
	"lyricbox/svc/api"
	"lyricbox/svc/auth"
	"lyricbox/svc/cache"
	"lyricbox/svc/lim"
	"lyricbox/svc/svc"
	"lyricbox/svc/util"

	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "-health" {
		os.Exit(healthCheck())
	}

	// replaced once the configured level is known
	util.InitLog("info", false)
	c, err := cfg.Load()
	if err != nil {
		util.Fatal().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}
	if err := cfg.Validate(c); err != nil {
		util.Fatal().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}
	defer c.Wipe()
	util.InitLog(c.LogLevel, c.Environment == "development")
	util.Info().Str("backend", c.StoreBackend).Msg("starting lyricbox API")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := resolveSecrets(ctx, c); err != nil {
		util.Fatal().Err(err).Msg("failed to resolve secrets")
		os.Exit(1)
	}
	admin := auth.NewAdmin(c.AdminToken.Value())
	if !admin.Enabled() {
		util.Warn().Msg("ADMIN_TOKEN not set, moderation is disabled")
	}

	store, sqlStore, err := openStore(c)
	if err != nil {
		util.Fatal().Err(err).Str("backend", c.StoreBackend).Msg("failed to open store")
		os.Exit(1)
	}
	if store != nil {
		defer store.Close()
		util.Info().Str("backend", c.StoreBackend).Msg("store connected")
	}

	parsed, err := cache.NewParsed(c.ParseCacheSize)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to create parse cache")
		os.Exit(1)
	}
	board := svc.NewBoard(store, parsed, c)

	limiter := lim.New(store, c.RateLimit.Max, c.RateLimit.Window, c.KeyPrefix, []byte(c.RateLimit.Key.Value()))
	defer limiter.Stop()
	util.Info().
		Int("max", c.RateLimit.Max).
		Dur("window", c.RateLimit.Window).
		Msg("rate limiter initialized")

	server := api.NewServer(c, board, limiter, admin, store)

	g, gctx := errgroup.WithContext(ctx)
	if sqlStore != nil {
		g.Go(func() error {
			quit := make(chan struct{})
			go func() {
				<-gctx.Done()
				close(quit)
			}()
			sqlStore.StartWALMaintenance(quit)
			return nil
		})
		util.Info().Msg("WAL maintenance worker started")
		if err := svc.StartCleaner(gctx, sqlStore, 10*time.Minute); err != nil {
			util.Error().Err(err).Msg("failed to start cleaner")
		}
	}

	if c.PprofAddr != "" {
		go func() {
			util.Info().Str("addr", c.PprofAddr).Msg("starting pprof server")
			if err := http.ListenAndServe(c.PprofAddr, nil); err != nil {
				util.Warn().Err(err).Msg("pprof server failed")
			}
		}()
	}

	util.Info().Str("port", c.Port).Str("environment", c.Environment).Msg("server starting")
	g.Go(server.Start)
	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			util.Info().Msg("shutting down gracefully...")
		case <-gctx.Done():
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		err := server.Shutdown(shutdownCtx)
		cancel()
		return err
	})
	if err := g.Wait(); err != nil {
		util.Error().Err(err).Msg("server stopped with error")
		limiter.Stop()
		if store != nil {
			store.Close()
		}
		os.Exit(1)
	}
	util.Info().Msg("Shutdown complete")
}

// healthCheck probes the local /health endpoint for container health checks.
func healthCheck() int {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	client := cleanhttp.DefaultClient()
	client.Timeout = 2 * time.Second
	resp, err := client.Get("http://127.0.0.1:" + port + "/health")
	if err != nil {
		return 1
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}
