package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dojo-stack/server/internal/api"
	"github.com/dojo-stack/server/internal/cache"
	"github.com/dojo-stack/server/internal/config"
	"github.com/dojo-stack/server/internal/render"
	"github.com/dojo-stack/server/internal/service"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "override the configured port")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := loggerFromContext(ctx)

	geometry, err := cfg.Source.Geometry()
	if err != nil {
		return err
	}

	// Initialize cache manager
	cacheManager, err := cache.NewManager(cache.Config{
		TileCacheSizeMB:  cfg.Cache.TileSizeMB,
		TileTTL:          time.Duration(cfg.Cache.TileTTLMinutes) * time.Minute,
		AddressCacheSize: cfg.Cache.AddressCacheSize,
	})
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	defer cacheManager.Close()

	stackService, err := service.NewStackService(service.StackServiceConfig{
		Geometry:  geometry,
		Channels:  cfg.Stack.Channels,
		MaxBuffer: cfg.Stack.MaxBuffer,
		Center:    cfg.Stack.Center,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("initialize stack: %w", err)
	}

	addressService := service.NewAddressService(service.AddressServiceConfig{
		Layers: stackService.Layers(),
		Cache:  cacheManager,
		Renderer: render.NewTileRenderer(render.Config{
			TileSize: geometry.TileSize,
			Levels:   geometry.MaxLevel() + 1,
		}),
	})

	router := api.NewRouter(api.RouterConfig{
		Stack:       stackService,
		Addresses:   addressService,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.Info("stack ready",
		"channels", cfg.Stack.Channels,
		"layers", len(stackService.Layers()),
		"max_level", geometry.MaxLevel(),
		"center", cfg.Stack.Center)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", fmt.Sprintf("http://localhost:%d", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", "err", err)
	}

	logger.Info("server stopped")
	return nil
}
