package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jacokyle01/chess-analysis/src/config"
	"github.com/jacokyle01/chess-analysis/src/engine"
)

var (
	configPath string
	cfg        config.Config
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "chess-analysis",
	Short:         "Distributed chess analysis on UCI engines",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err = newLogger(cfg.Log)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.AddCommand(serveCmd, workerCmd, analyzeCmd, reviewCmd)
}

func newLogger(c config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.JSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

// startEngine launches the configured engine process and completes the handshake.
func startEngine(ctx context.Context) (*engine.Client, error) {
	proc, err := engine.StartProcess(logger, cfg.Engine.Path, cfg.Engine.Args...)
	if err != nil {
		return nil, err
	}
	client, err := engine.NewClient(ctx, proc, engine.Options{
		Logger:           logger,
		Settings:         cfg.Engine.Options,
		HandshakeTimeout: cfg.Engine.HandshakeTimeout,
		SearchTimeout:    cfg.Engine.SearchTimeout,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("engine ready", "name", client.Name(), "path", cfg.Engine.Path)
	return client, nil
}

func stopEngine(client *engine.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Engine.HandshakeTimeout)
	defer cancel()
	if err := client.Shutdown(ctx); err != nil {
		logger.Warn("engine shutdown", "error", err)
	}
}

func localURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
