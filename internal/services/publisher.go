package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/docsupervisor/internal/logger"
	"github.com/Lllllllleong/docsupervisor/internal/models"
)

// Publisher stores the result JSON and the HTML report next to the source
// and optionally hands the result to a downstream workflow.
type Publisher struct {
	store        BlobStore
	trigger      ReportTrigger
	outputPrefix string
	log          zerolog.Logger
}

// NewPublisher creates a Publisher. trigger may be nil.
func NewPublisher(store BlobStore, trigger ReportTrigger, outputPrefix string) *Publisher {
	return &Publisher{
		store:        store,
		trigger:      trigger,
		outputPrefix: outputPrefix,
		log:          logger.WithComponent("publisher"),
	}
}

// Publish writes <prefix><filename>.json and <prefix><filename>.html
// concurrently and fills the result and report locations of result. Only a
// failure to write the JSON is returned.
func (p *Publisher) Publish(ctx context.Context, invocationID string, source models.Location, result *models.ProcessDocumentResponse) error {
	logCtx := p.log.With().Str("invocationId", invocationID).Str("source", source.URI()).Logger()

	resultLoc := models.Location{Bucket: source.Bucket, Key: p.outputPrefix + source.Filename() + ".json"}
	reportLoc := models.Location{Bucket: source.Bucket, Key: p.outputPrefix + source.Filename() + ".html"}

	report, err := RenderReport(source, result)
	if err != nil {
		logCtx.Error().Err(err).Msg("Failed to render HTML report")
	}

	// The result JSON records where the report went, so fill both
	// locations before marshalling.
	result.ResultLocation = resultLoc.URI()
	if report != nil {
		result.ReportLocation = reportLoc.URI()
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	reportOK := report != nil
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := p.store.Put(gCtx, resultLoc, data, "application/json"); err != nil {
			return fmt.Errorf("failed to write result to %s: %w", resultLoc.URI(), err)
		}
		logCtx.Info().Str("resultLocation", resultLoc.URI()).Msg("Final result written")
		return nil
	})
	if report != nil {
		// Uses ctx rather than gCtx so a failed JSON write does not cancel it.
		g.Go(func() error {
			if err := p.store.Put(ctx, reportLoc, report, "text/html; charset=utf-8"); err != nil {
				logCtx.Error().Err(err).Str("reportLocation", reportLoc.URI()).Msg("Failed to write HTML report")
				reportOK = false
				return nil
			}
			logCtx.Info().Str("reportLocation", reportLoc.URI()).Msg("HTML intelligence report written")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logCtx.Error().Err(err).Msg("Failed to publish result")
		return err
	}
	if !reportOK {
		result.ReportLocation = ""
	}

	if p.trigger != nil {
		arg := &models.ReportWorkflowArgument{InvocationID: invocationID, Result: result}
		if err := p.trigger.Trigger(ctx, arg); err != nil {
			logCtx.Error().Err(err).Msg("Failed to trigger report workflow")
			return fmt.Errorf("failed to trigger report workflow: %w", err)
		}
	}
	return nil
}
