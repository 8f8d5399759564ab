package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/resumechat/internal/api"
	"github.com/kalambet/resumechat/internal/config"
	"github.com/kalambet/resumechat/internal/profile"
	"github.com/kalambet/resumechat/internal/retention"
	"github.com/kalambet/resumechat/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(console{w: cmd.ErrOrStderr()})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and configuration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := console{w: cmd.OutOrStdout()}
		cfg, err := config.Load()
		if err != nil {
			// Still show partial status even if config fails.
			out.fail("config error: %v", err)
			return nil
		}
		return showStatus(cmd.Context(), out, cfg, newAPIClientFor(cfg, 2*time.Second))
	},
}

func runServer(out console) error {
	fmt.Fprintf(out.w, "resumechat version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out.step("Loading profile from %s", cfg.Profile.Path)
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			out.warn("closing storage: %v", err)
		}
	}()

	if apiKeyFunc(cfg)() == "" {
		out.warn("%s is not set; chat requests will fail until it is", config.APIKeyEnv)
	}

	if cfg.Profile.Watch {
		w, err := profile.NewWatcher(a.profile, profile.DefaultDebounce)
		if err != nil {
			return fmt.Errorf("starting profile watcher: %w", err)
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error("profile watcher exited", "error", err)
			}
		}()
	}

	if a.store != nil && cfg.Storage.Retention != "" {
		maxAge, err := time.ParseDuration(cfg.Storage.Retention)
		if err != nil {
			logger.Warn("invalid storage retention, keeping all interactions", "value", cfg.Storage.Retention, "error", err)
		} else {
			go retention.NewPruner(a.store, maxAge, retention.DefaultInterval, logger).Run(ctx)
		}
	}

	handler := api.NewHandler(api.Deps{
		Chat:            a.chat,
		Metrics:         a.metrics,
		HandlePreflight: a.handlePreflight,
		AllowMethods:    a.variant.AllowMethods,
		Logger:          logger,
	})

	addr := cfg.ListenAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	logger.Info("chat server configured",
		"variant", a.variant.Name,
		"model", a.chat.Model(),
		"preflight", a.handlePreflight,
		"metrics", a.metrics != nil,
		"record_interactions", a.store != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		out.step("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		out.step("Shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type healthStatus struct {
	Status        string `json:"status"`
	ProfileLoaded bool   `json:"profile_loaded"`
	ProfileState  string `json:"profile_state"`
}

func fetchHealth(ctx context.Context, c *apiClient) (healthStatus, error) {
	resp, err := c.get(ctx, "/health")
	if err != nil {
		return healthStatus{}, err
	}
	var h healthStatus
	if err := decodeJSON(resp, &h); err != nil {
		return healthStatus{}, err
	}
	return h, nil
}

func showStatus(ctx context.Context, out console, cfg config.Config, c *apiClient) error {
	h, err := fetchHealth(ctx, c)
	if err != nil {
		out.field("Server", "stopped")
	} else {
		out.field("Server", "running at %s", c.baseURL)
		out.field("Profile loaded", "%t (%s)", h.ProfileLoaded, h.ProfileState)
	}

	out.field("Variant", "%s", cfg.Chat.Variant)
	model := cfg.Gemini.Model
	if model == "" {
		model = "(variant default)"
	}
	out.field("Model", "%s", model)
	out.field("Profile", "%s", cfg.Profile.Path)
	out.field("API key", "%s", setOrNot(apiKeyFunc(cfg)() != ""))

	if cfg.Storage.RecordInteractions && storage.Exists(cfg.Storage.DataDir) {
		if store, err := storage.Open(cfg.Storage.DataDir); err == nil {
			if n, err := store.CountInteractions(""); err == nil {
				out.field("Interactions", "%d", n)
			}
			store.Close()
		}
	}

	out.field("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func setOrNot(b bool) string {
	if b {
		return "set"
	}
	return "not set"
}
