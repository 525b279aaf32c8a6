// Command aosc-mirror-syncd runs the signed-trigger mirror synchronizer
// daemon.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AOSC-Dev/aosc-mirror/internal/config"
	"github.com/AOSC-Dev/aosc-mirror/internal/httpapi"
	"github.com/AOSC-Dev/aosc-mirror/internal/keyring"
	"github.com/AOSC-Dev/aosc-mirror/internal/metrics"
	"github.com/AOSC-Dev/aosc-mirror/internal/state"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "aosc-mirror-syncd",
		Short: "Signed-trigger APT/AOSC mirror synchronizer",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Load the configuration and start the HTTP control endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	serveCmd.Flags().StringVar(&configPath, "config", "/etc/aosc-mirror-syncd/config.yaml", "path to the YAML configuration file")
	root.AddCommand(serveCmd)

	return root
}

func runServe(ctx context.Context, configPath string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		return err
	}

	var requestKey, metadataKey *keyring.Keyring
	if !cfg.SkipVerification {
		requestKey, err = keyring.Load(cfg.RequestKeyringDir)
		if err != nil {
			logger.Error("failed to load request keyring", "error", err)
			return err
		}
		metadataKey, err = keyring.Load(cfg.MetadataKeyringDir)
		if err != nil {
			logger.Error("failed to load metadata keyring", "error", err)
			return err
		}
	} else {
		logger.Warn("skip_verification is set; signature checks are disabled")
	}

	server := &httpapi.Server{
		Config:      cfg,
		State:       state.New(),
		RequestKey:  requestKey,
		MetadataKey: metadataKey,
		Metrics:     metrics.New(),
		HTTPClient:  http.DefaultClient,
		Logger:      logger,
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return httpapi.Serve(runCtx, cfg.ListenAddr, server.Handler(), logger)
}
