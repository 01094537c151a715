package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/docsupervisor/internal/models"
	"github.com/Lllllllleong/docsupervisor/internal/services"
)

var processCmd = &cobra.Command{
	Use:   "process <bucket> <key>",
	Short: "Run the pipeline once for a document in Cloud Storage",
	Example: `  # Process an uploaded memo and print the result
  docsupervisor process doc-intake intake/memo.txt

  # Resume from the last checkpoint of a long scanned PDF
  RESUME_FROM_CHECKPOINT=true docsupervisor process doc-intake intake/statement.pdf`,
	Args: cobra.ExactArgs(2),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
	processCmd.Flags().Duration("timeout", 20*time.Minute, "Overall processing timeout")
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fn, err := services.NewDocumentFunction(ctx, cfg)
	if err != nil {
		return err
	}
	defer fn.Close()

	res, err := fn.Process(ctx, models.ProcessDocumentRequest{Bucket: args[0], Key: args[1]})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}
