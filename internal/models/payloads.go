package models

// These structs define the JSON payloads exchanged with the hosting platform
// and the downstream report workflow.

// ProcessDocumentRequest is the input for the document supervisor.
type ProcessDocumentRequest struct {
	Bucket string `json:"bucket" validate:"required"`
	Key    string `json:"key" validate:"required"`
}

// Location returns the storage coordinates of the request.
func (r ProcessDocumentRequest) Location() Location {
	return Location{Bucket: r.Bucket, Key: r.Key}
}

// ProcessDocumentResponse is the output of the document supervisor.
type ProcessDocumentResponse struct {
	Bucket           string            `json:"bucket"`
	Key              string            `json:"key"`
	TextLocation     string            `json:"text_uri,omitempty"`
	PageCount        int               `json:"page_count,omitempty"`
	Classification   *Classification   `json:"classification"`
	ProcessingResult *ExtractionResult `json:"processing_result"`
	ResultLocation   string            `json:"result_uri,omitempty"`
	ReportLocation   string            `json:"report_uri,omitempty"`
	Warnings         []string          `json:"warnings,omitempty"`
}

// GCSEvent is the payload of a storage object-finalized CloudEvent.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// ReportWorkflowArgument is handed to the downstream report workflow.
type ReportWorkflowArgument struct {
	InvocationID string                   `json:"invocationId"`
	Result       *ProcessDocumentResponse `json:"result"`
}
