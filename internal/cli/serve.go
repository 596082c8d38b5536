package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/wordgroups/internal/config"
	"github.com/mcoot/wordgroups/internal/factory"
)

// serveFlags are command line overrides applied on top of the loaded config
type serveFlags struct {
	tcpPort       int
	udpPort       int
	httpPort      int
	rounds        string
	roundDuration time.Duration
	storage       string
	storageDir    string
	adminPassword string
	noHTTP        bool
}

func newServeCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, err := config.Load(cfg.ConfigPath)
			if err != nil {
				return err
			}
			flags.apply(cmd, &appCfg)
			if err := appCfg.Validate(); err != nil {
				return err
			}

			logger := newLogger(cmd.ErrOrStderr(), appCfg.Log.Level, cfg.Verbose)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, appCfg, logger)
		},
	}

	cmd.Flags().IntVar(&flags.tcpPort, "tcp-port", 0, "TCP game port")
	cmd.Flags().IntVar(&flags.udpPort, "udp-port", 0, "UDP notification source port")
	cmd.Flags().IntVar(&flags.httpPort, "http-port", 0, "HTTP status API port")
	cmd.Flags().StringVar(&flags.rounds, "rounds", "", "Rounds file (JSON or YAML)")
	cmd.Flags().DurationVar(&flags.roundDuration, "round-duration", 0, "Duration of each round")
	cmd.Flags().StringVar(&flags.storage, "storage", "", "Storage backend: memory, file, redis")
	cmd.Flags().StringVar(&flags.storageDir, "storage-dir", "", "Directory for file storage")
	cmd.Flags().StringVar(&flags.adminPassword, "admin-password", "", "Password for oracle and god")
	cmd.Flags().BoolVar(&flags.noHTTP, "no-http", false, "Disable the HTTP status API")

	return cmd
}

func (f serveFlags) apply(cmd *cobra.Command, c *config.Config) {
	changed := cmd.Flags().Changed
	if changed("tcp-port") {
		c.TCP.Port = f.tcpPort
	}
	if changed("udp-port") {
		c.UDP.Port = f.udpPort
	}
	if changed("http-port") {
		c.HTTP.Port = f.httpPort
	}
	if changed("rounds") {
		c.Rounds.File = f.rounds
	}
	if changed("round-duration") {
		c.Rounds.Duration = f.roundDuration
	}
	if changed("storage") {
		c.Storage.Type = f.storage
	}
	if changed("storage-dir") {
		c.Storage.Dir = f.storageDir
	}
	if changed("admin-password") {
		c.Admin.Password = f.adminPassword
	}
	if f.noHTTP {
		c.HTTP.Enabled = false
	}
}

func serve(ctx context.Context, appCfg config.Config, logger *slog.Logger) error {
	app, err := factory.New(factory.Config{App: appCfg, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("failed to release resources", slog.String("error", err.Error()))
		}
	}()

	if err := app.PuzzleService.LoadFromFile(ctx, appCfg.Rounds.File); err != nil {
		return fmt.Errorf("failed to load rounds: %w", err)
	}

	logger.Info("server starting",
		slog.Int("tcp_port", appCfg.TCP.Port),
		slog.Int("rounds", app.PuzzleService.Count()),
		slog.String("storage", appCfg.Storage.Type),
		slog.Bool("http", appCfg.HTTP.Enabled),
	)

	if err := app.Run(ctx); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}

func newLogger(w io.Writer, level string, verbose bool) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
