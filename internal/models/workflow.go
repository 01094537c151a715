package models

import (
	"fmt"
	"path"
	"strings"
)

// Location identifies an object in the blob store.
type Location struct {
	Bucket string `json:"bucket" validate:"required"`
	Key    string `json:"key" validate:"required"`
}

// URI renders the location as a gs:// URI.
func (l Location) URI() string {
	return fmt.Sprintf("gs://%s/%s", l.Bucket, l.Key)
}

// Filename is the last path segment of the key.
func (l Location) Filename() string {
	return path.Base(l.Key)
}

// Ext returns the lower-cased extension of the key without the leading dot.
func (l Location) Ext() string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(l.Key)), ".")
}

// IsZero reports whether neither coordinate is set.
func (l Location) IsZero() bool {
	return l.Bucket == "" && l.Key == ""
}

// Category is the closed document taxonomy used by the classification stage.
type Category string

const (
	CategoryKYCDoc             Category = "KYC_DOC"
	CategoryAccountStatement   Category = "ACCOUNT_STATEMENT"
	CategorySuitabilityForm    Category = "SUITABILITY_FORM"
	CategoryQuestionsDoc       Category = "QUESTIONS_DOC"
	CategoryDataJSON           Category = "DATA_JSON"
	CategoryPolicyOrDisclosure Category = "POLICY_OR_DISCLOSURE"
	CategorySummaryMemo        Category = "SUMMARY_MEMO"
	CategoryOther              Category = "OTHER"
)

// Categories lists the taxonomy in prompt order.
var Categories = []Category{
	CategoryKYCDoc,
	CategoryAccountStatement,
	CategorySuitabilityForm,
	CategoryQuestionsDoc,
	CategoryDataJSON,
	CategoryPolicyOrDisclosure,
	CategorySummaryMemo,
	CategoryOther,
}

var categoryIntents = map[Category]string{
	CategorySummaryMemo:        "Summarization and insight generation",
	CategoryQuestionsDoc:       "Question understanding and knowledge retrieval",
	CategoryKYCDoc:             "Client onboarding and identity verification",
	CategoryAccountStatement:   "Account and portfolio reporting",
	CategorySuitabilityForm:    "Financial suitability assessment",
	CategoryDataJSON:           "Configuration / analytics data inspection",
	CategoryPolicyOrDisclosure: "Policy, disclosure, or terms analysis",
	CategoryOther:              "General document understanding",
}

// Valid reports whether c is one of the taxonomy values.
func (c Category) Valid() bool {
	_, ok := categoryIntents[c]
	return ok
}

// Intent is the human readable purpose shown in reports.
func (c Category) Intent() string {
	if intent, ok := categoryIntents[c]; ok {
		return intent
	}
	return "Document understanding and insight extraction"
}

// ParseCategory maps a model supplied label onto the taxonomy. Labels are
// matched case-insensitively after trimming; ok is false for unknown labels.
func ParseCategory(label string) (Category, bool) {
	c := Category(strings.ToUpper(strings.TrimSpace(label)))
	if c.Valid() {
		return c, true
	}
	return CategoryOther, false
}

// Classification is the output of the classification stage.
type Classification struct {
	Category   Category `json:"category" firestore:"category"`
	Confidence float64  `json:"confidence" firestore:"confidence"`
	// RawCategory holds the model's label when it was outside the taxonomy.
	RawCategory string `json:"raw_category,omitempty" firestore:"rawCategory,omitempty"`
}

// ExtractionResult is the output of the extraction stage.
type ExtractionResult struct {
	Category        Category       `json:"category"`
	Summary         string         `json:"summary"`
	KeyEntities     map[string]any `json:"key_entities"`
	ExtractedFields map[string]any `json:"extracted_fields"`
}

// WorkflowRecord is the per-invocation state threaded through the pipeline.
// Fields are filled strictly in the order text, classification, extraction.
type WorkflowRecord struct {
	Source           Location          `json:"source"`
	Text             *string           `json:"text,omitempty"`
	TextLocation     *Location         `json:"text_location,omitempty"`
	PageCount        int               `json:"page_count,omitempty"`
	Classification   *Classification   `json:"classification,omitempty"`
	ExtractionResult *ExtractionResult `json:"extraction_result,omitempty"`
	Warnings         []string          `json:"warnings,omitempty"`

	// SourceGeneration is the storage generation of the source object the
	// text was extracted from.
	SourceGeneration int64 `json:"source_generation,omitempty"`

	// Revision is the storage generation of the last saved checkpoint.
	Revision int64 `json:"-"`
}

// NewWorkflowRecord starts a record with only the source populated.
func NewWorkflowRecord(source Location) *WorkflowRecord {
	return &WorkflowRecord{Source: source}
}

func (r *WorkflowRecord) HasText() bool           { return r.Text != nil }
func (r *WorkflowRecord) HasClassification() bool { return r.Classification != nil }
func (r *WorkflowRecord) HasExtraction() bool     { return r.ExtractionResult != nil }

// Warn appends a non-fatal diagnostic.
func (r *WorkflowRecord) Warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Consistent reports whether the ordering invariant holds.
func (r *WorkflowRecord) Consistent() bool {
	if r.HasClassification() && !r.HasText() {
		return false
	}
	if r.HasExtraction() && !r.HasClassification() {
		return false
	}
	return true
}

// Result builds the invocation output from the record.
func (r *WorkflowRecord) Result() *ProcessDocumentResponse {
	res := &ProcessDocumentResponse{
		Bucket:           r.Source.Bucket,
		Key:              r.Source.Key,
		PageCount:        r.PageCount,
		Classification:   r.Classification,
		ProcessingResult: r.ExtractionResult,
		Warnings:         r.Warnings,
	}
	if r.TextLocation != nil {
		res.TextLocation = r.TextLocation.URI()
	}
	return res
}
