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

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.uber.org/dig"

	router "github.com/dkeye/pulse/internal/adapters/http"
	"github.com/dkeye/pulse/internal/app/presence"
	"github.com/dkeye/pulse/internal/config"
	"github.com/dkeye/pulse/internal/core"
	"github.com/dkeye/pulse/internal/hooks"
)

// Version information set at build time.
var version = "dev"

// HookAppLoad lets listeners prepare before the server accepts connections.
const HookAppLoad = "static:app.load"

func main() {
	rootCmd := &cobra.Command{
		Use:           "pulse",
		Short:         "Hook bus and real-time presence server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(serveCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func serveCmd() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configFile)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file (default config/config.$CONFIG_ENV.yaml)")
	return cmd
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg != nil && cfg.Development() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func serve(configFile string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config loading can use it.
	setupLogger(nil)

	var (
		cfg *config.Config
		err error
	)
	if configFile != "" {
		cfg, err = config.LoadFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogger(cfg)

	c, err := buildContainer(cfg)
	if err != nil {
		return fmt.Errorf("build container: %w", err)
	}
	return c.Invoke(func(in serverParams) error {
		return run(ctx, cfg, in)
	})
}

type serverParams struct {
	dig.In

	Router  router.RouterParams
	Bus     *hooks.Bus
	Tracker *presence.Tracker
	Adapter core.MembershipAdapter
	Redis   goredis.UniversalClient
}

func run(ctx context.Context, cfg *config.Config, in serverParams) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	bus, tracker, adapter := in.Bus, in.Tracker, in.Adapter

	report, err := bus.FireStatic(ctx, HookAppLoad, cfg)
	if err != nil {
		return err
	}
	for id, ferr := range report.Failed {
		log.Warn().Err(ferr).Str("listener", id).Msg("app.load listener failed")
	}

	if adapter != nil {
		go tracker.SyncAdapter(ctx, cfg.RefreshInterval)
	}

	r := router.SetupRouter(ctx, in.Router)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("node", cfg.NodeID).Msg("pulse server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	bus.Drain()
	tracker.Close()
	if adapter != nil {
		_ = adapter.Close()
	}
	if in.Redis != nil {
		_ = in.Redis.Close()
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
