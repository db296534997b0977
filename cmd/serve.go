package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dashshot/internal/api/handlers"
	"dashshot/internal/api/routes"
	"dashshot/internal/compiler"
	"dashshot/internal/services"
	"dashshot/internal/store"
	"dashshot/internal/worker"
	"dashshot/pkg/auth"
	"dashshot/pkg/database"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the capture API and worker orchestrator",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	auth.InitJWT(cfg.JWT.Secret)
	if !auth.Enabled() {
		log.Warn().Msg("⚠️ JWT secret not set, API is unauthenticated")
	}

	if err := database.InitDatabase(cfg); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := os.MkdirAll(cfg.Capture.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create screenshot dir: %w", err)
	}

	throttle := store.NewThrottleStore(database.DB)
	spawner, err := worker.NewProcessSpawner(cfg.Worker.Executable)
	if err != nil {
		return err
	}
	if configFile != "" {
		spawner.Args = append(spawner.Args, "--config", configFile)
	}

	hub := handlers.NewHub()
	orchestrator := services.NewOrchestrator(spawner, throttle, services.OrchestratorOptions{
		Ceiling:        cfg.Worker.Ceiling,
		StartupCeiling: cfg.Worker.StartupCeiling,
		OnSuccess:      hub.ScreenshotDone,
	})
	capture := services.NewCaptureService(orchestrator, compiler.New(compiler.OptionsFromConfig(cfg)), cfg.Capture)
	janitor := services.NewJanitor(cfg.Janitor, cfg.Chrome.ProfilesDir, throttle, orchestrator.Busy)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orchestrator.Start(ctx)
	if err := janitor.Start(); err != nil {
		return err
	}

	gin.SetMode(cfg.Server.Mode)
	router := routes.SetupRoutes(routes.Deps{
		Capture: &handlers.CaptureHandler{Service: capture, Throttle: throttle, Queue: orchestrator},
		Hub:     hub,
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("🚀 Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		stop()
		janitor.Stop()
		_ = orchestrator.Wait()
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Server shutdown incomplete")
	}
	janitor.Stop()
	_ = orchestrator.Wait()
	log.Info().Msg("Server shutdown complete")
	return nil
}
