package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/rs/zerolog/log"

	"github.com/Lllllllleong/docsupervisor/internal/config"
	"github.com/Lllllllleong/docsupervisor/internal/logger"
	"github.com/Lllllllleong/docsupervisor/internal/models"
	"github.com/Lllllllleong/docsupervisor/internal/server"
	"github.com/Lllllllleong/docsupervisor/internal/services"
)

var (
	documentInstance *services.DocumentFunction
	once             sync.Once
	initErr          error
)

func init() {
	if err := logger.Setup(logger.DefaultConfig()); err != nil {
		panic(err)
	}

	// HTTP for direct invocation, CloudEvent for uploads to the intake bucket.
	functions.HTTP("HandleProcessDocument", handleProcessDocument)
	functions.CloudEvent("ProcessUploadedDocument", processUploadedDocument)
}

// main is required by the Go Functions Framework.
func main() {}

func instance() (*services.DocumentFunction, error) {
	once.Do(func() {
		var cfg *config.Config
		cfg, initErr = config.Load()
		if initErr != nil {
			return
		}
		if err := logger.Setup(cfg.LoggerConfig()); err != nil {
			log.Warn().Err(err).Msg("Invalid log configuration, keeping defaults")
		}
		documentInstance, initErr = services.NewDocumentFunction(context.Background(), cfg)
	})
	return documentInstance, initErr
}

func handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	fn, err := instance()
	if err != nil {
		log.Error().Err(err).Msg("CRITICAL: document function initialization failed")
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	server.ProcessHandler(fn, logger.WithComponent("http-function")).ServeHTTP(w, r)
}

func processUploadedDocument(ctx context.Context, e cloudevents.Event) error {
	fn, err := instance()
	if err != nil {
		log.Error().Err(err).Msg("Critical error during function initialization")
		return err
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		log.Error().Err(err).Str("data", string(e.Data())).Msg("Failed to unmarshal event data")
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	return fn.ProcessEvent(ctx, gcsEvent)
}
