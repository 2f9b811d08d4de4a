package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nghyane/msgproxy/internal/api"
	"github.com/nghyane/msgproxy/internal/bootstrap"
	"github.com/nghyane/msgproxy/internal/config"
	"github.com/nghyane/msgproxy/internal/logging"
	log "github.com/nghyane/msgproxy/internal/logging"
	"github.com/nghyane/msgproxy/internal/ratelimit"
	"github.com/nghyane/msgproxy/internal/registry"
	"github.com/nghyane/msgproxy/internal/runtime/executor"
	"github.com/nghyane/msgproxy/internal/usage"
	"github.com/nghyane/msgproxy/internal/watcher"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

var (
	servePort     int
	serveNoReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the msgproxy server",
	Long: `Start the msgproxy HTTP server.

The config file is loaded, MSGPROXY_* environment overrides are applied, the model
catalog is fetched from the backend, and the server listens until interrupted.
Edits to the config file are applied without a restart where possible.`,
	RunE: runServe,
}

func runServe(c *cobra.Command, _ []string) error {
	logging.SetupBaseLogger()

	result, err := bootstrap.Bootstrap(cfgFile)
	if err != nil {
		return err
	}
	cfg := result.Config
	if servePort != 0 {
		cfg.Port = servePort
	}

	logging.SetDebug(cfg.Debug)
	if err := logging.ConfigureLogOutput(cfg.LoggingToFile, cfg.LogDir); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := executor.NewClient(cfg)
	if err != nil {
		return err
	}

	models := registry.NewModelRegistry(staticModels(cfg))
	resolver := registry.NewResolver(resolverOptions(cfg))
	refresher := registry.NewRefresher(registry.NewCatalogLoader(client, models, 0), cfg.Catalog.RefreshSchedule)
	if err := refresher.Start(ctx); err != nil {
		return err
	}
	defer refresher.Stop()

	recorder, err := usage.Open(cfg.Usage)
	if err != nil {
		log.Warnf("usage persistence disabled: %v", err)
		recorder = usage.NewRecorder(nil)
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			log.Warnf("usage: close: %v", err)
		}
	}()

	limiter := ratelimit.New(cfg.RateLimit)
	srv := api.NewServer(api.Options{
		Config:     cfg,
		ConfigPath: result.ConfigFilePath,
		Backend:    client,
		Registry:   models,
		Resolver:   resolver,
		Limiter:    limiter,
		Usage:      recorder,
	})

	if !serveNoReload && fileExists(result.ConfigFilePath) {
		startWatcher(ctx, result.ConfigFilePath, cfg, func(prev, next *config.Config) {
			if servePort != 0 {
				next.Port = servePort
			}
			logging.SetDebug(next.Debug)
			resolver.Update(resolverOptions(next))
			models.SetStaticModels(staticModels(next))
			limiter.Update(next.RateLimit)
			srv.ApplyConfig(next)
		})
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	log.Infof("msgproxy listening on %s, backend %s", cfg.Addr(), cfg.Backend.BaseURL)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func startWatcher(ctx context.Context, path string, cfg *config.Config, apply watcher.ApplyFunc) {
	w, err := watcher.New(path, cfg, watcher.Options{Apply: apply})
	if err != nil {
		log.Warnf("config hot reload disabled: %v", err)
		return
	}
	go func() {
		if err := w.Run(ctx); err != nil {
			log.Warnf("config watcher stopped: %v", err)
		}
	}()
}

func staticModels(cfg *config.Config) []registry.Model {
	out := make([]registry.Model, 0, len(cfg.Catalog.StaticModels))
	for _, m := range cfg.Catalog.StaticModels {
		out = append(out, registry.Model{
			ID:                 m.ID,
			OwnedBy:            m.OwnedBy,
			SupportedEndpoints: m.SupportedEndpoints,
		})
	}
	return out
}

func resolverOptions(cfg *config.Config) registry.ResolverOptions {
	return registry.ResolverOptions{
		Aliases:  cfg.ModelAliases,
		Families: cfg.ModelFamilies,
	}
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "server port (overrides config)")
	serveCmd.Flags().BoolVar(&serveNoReload, "no-reload", false, "do not watch the config file for changes")
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())
	rootCmd.AddCommand(serveCmd)
}
