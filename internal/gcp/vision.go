package gcp

import (
	"context"
	"fmt"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/Lllllllleong/docsupervisor/internal/models"
)

// visionBatchSize is the number of pages per result shard.
const visionBatchSize = 20

// VisionOCR detects document text with the Cloud Vision API. PDFs go through
// asynchronous file annotation whose results land in Cloud Storage.
type VisionOCR struct {
	client       *vision.ImageAnnotatorClient
	gcs          *GCSStore
	outputBucket string
	outputPrefix string
	jobs         *jobRegistry
}

// NewVisionOCR creates a VisionOCR writing async results under
// outputBucket/outputPrefix. An empty outputBucket means the source bucket.
func NewVisionOCR(ctx context.Context, gcs *GCSStore, outputBucket, outputPrefix string) (*VisionOCR, error) {
	client, err := vision.NewImageAnnotatorClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vision client: %w", err)
	}
	return &VisionOCR{
		client:       client,
		gcs:          gcs,
		outputBucket: outputBucket,
		outputPrefix: outputPrefix,
		jobs:         newJobRegistry(),
	}, nil
}

// Close closes the underlying client.
func (v *VisionOCR) Close() error {
	return v.client.Close()
}

func documentTextFeature() []*visionpb.Feature {
	return []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}}
}

// StartAsyncDetection submits an asynchronous file annotation and returns
// the long-running operation name as the job ID.
func (v *VisionOCR) StartAsyncDetection(ctx context.Context, loc models.Location) (string, error) {
	mimeType, err := ocrMimeType(loc)
	if err != nil {
		return "", err
	}
	output := outputLocation(v.outputBucket, v.outputPrefix, loc)

	req := &visionpb.AsyncBatchAnnotateFilesRequest{
		Requests: []*visionpb.AsyncAnnotateFileRequest{{
			InputConfig: &visionpb.InputConfig{
				GcsSource: &visionpb.GcsSource{Uri: loc.URI()},
				MimeType:  mimeType,
			},
			Features: documentTextFeature(),
			OutputConfig: &visionpb.OutputConfig{
				GcsDestination: &visionpb.GcsDestination{Uri: output.URI()},
				BatchSize:      visionBatchSize,
			},
		}},
	}
	op, err := v.client.AsyncBatchAnnotateFiles(ctx, req)
	if err != nil {
		return "", fmt.Errorf("vision AsyncBatchAnnotateFiles: %w", err)
	}
	v.jobs.add(op.Name(), output)
	return op.Name(), nil
}

// GetDetectionResults polls the operation while nextToken is empty and the
// job is running. Once done, each page holds the lines of one result shard.
func (v *VisionOCR) GetDetectionResults(ctx context.Context, jobID, nextToken string) (*models.DetectionPage, error) {
	if nextToken == "" {
		op := v.client.AsyncBatchAnnotateFilesOperation(jobID)
		if _, err := op.Poll(ctx); err != nil {
			if op.Done() {
				v.jobs.release(jobID)
				return &models.DetectionPage{Status: models.JobFailed, Message: err.Error()}, nil
			}
			return nil, fmt.Errorf("vision operation poll: %w", err)
		}
		if !op.Done() {
			return &models.DetectionPage{Status: models.JobRunning}, nil
		}
		if meta, err := op.Metadata(); err == nil && meta.GetState() == visionpb.OperationMetadata_CANCELLED {
			v.jobs.release(jobID)
			return &models.DetectionPage{Status: models.JobFailed, Message: "operation cancelled"}, nil
		}
	}

	data, next, err := shardPage(ctx, v.gcs, v.jobs, jobID, nextToken)
	if err != nil {
		return nil, err
	}
	page := &models.DetectionPage{Status: models.JobSucceeded, NextToken: next}
	if data == nil {
		return page, nil
	}

	var shard visionpb.AnnotateFileResponse
	if err := (protojson.UnmarshalOptions{DiscardUnknown: true}).Unmarshal(data, &shard); err != nil {
		return nil, fmt.Errorf("failed to decode Vision result shard: %w", err)
	}
	// One response per PDF page.
	page.PageCount = len(shard.GetResponses())
	for _, resp := range shard.GetResponses() {
		if resp.GetError() != nil && resp.GetError().GetCode() != 0 {
			page.Status = models.JobPartialSuccess
			page.Message = resp.GetError().GetMessage()
			continue
		}
		page.Blocks = append(page.Blocks, textBlocks(resp.GetFullTextAnnotation().GetText())...)
	}
	return page, nil
}

// DetectSync annotates a single image or a TIFF file in one call.
func (v *VisionOCR) DetectSync(ctx context.Context, loc models.Location) ([]models.Block, error) {
	mimeType, err := ocrMimeType(loc)
	if err != nil {
		return nil, err
	}

	var responses []*visionpb.AnnotateImageResponse
	if mimeType == "image/tiff" {
		resp, err := v.client.BatchAnnotateFiles(ctx, &visionpb.BatchAnnotateFilesRequest{
			Requests: []*visionpb.AnnotateFileRequest{{
				InputConfig: &visionpb.InputConfig{
					GcsSource: &visionpb.GcsSource{Uri: loc.URI()},
					MimeType:  mimeType,
				},
				Features: documentTextFeature(),
			}},
		})
		if err != nil {
			return nil, fmt.Errorf("vision BatchAnnotateFiles: %w", err)
		}
		for _, file := range resp.GetResponses() {
			if file.GetError() != nil && file.GetError().GetCode() != 0 {
				return nil, fmt.Errorf("vision API error: %s", file.GetError().GetMessage())
			}
			responses = append(responses, file.GetResponses()...)
		}
	} else {
		resp, err := v.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
			Requests: []*visionpb.AnnotateImageRequest{{
				Image:    &visionpb.Image{Source: &visionpb.ImageSource{ImageUri: loc.URI()}},
				Features: documentTextFeature(),
			}},
		})
		if err != nil {
			return nil, fmt.Errorf("vision BatchAnnotateImages: %w", err)
		}
		responses = resp.GetResponses()
	}

	var blocks []models.Block
	for _, r := range responses {
		if r.GetError() != nil && r.GetError().GetCode() != 0 {
			return nil, fmt.Errorf("vision API error: %s", r.GetError().GetMessage())
		}
		blocks = append(blocks, textBlocks(r.GetFullTextAnnotation().GetText())...)
	}
	return blocks, nil
}
