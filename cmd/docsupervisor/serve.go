package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Lllllllleong/docsupervisor/internal/logger"
	"github.com/Lllllllleong/docsupervisor/internal/server"
	"github.com/Lllllllleong/docsupervisor/internal/services"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve POST /invocations, GET /ping and GET /metrics",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Int("port", 0, "Listen port (default HTTP_PORT)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	port, _ := cmd.Flags().GetInt("port")
	if port == 0 {
		port = cfg.HTTPPort
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fn, err := services.NewDocumentFunction(ctx, cfg)
	if err != nil {
		return err
	}
	defer fn.Close()

	srv := server.NewServer(server.Config{
		Address:         fmt.Sprintf(":%d", port),
		ReadTimeout:     30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}, fn, prometheus.DefaultGatherer, logger.WithComponent("serve"))
	return srv.Start(ctx)
}
