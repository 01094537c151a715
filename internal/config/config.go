// Package config loads the document supervisor configuration from the
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Lllllllleong/docsupervisor/internal/logger"
)

// Supported collaborator backends.
const (
	ModelProviderVertex = "vertex"
	ModelProviderGemini = "gemini"

	OCRProviderVision     = "vision"
	OCRProviderDocumentAI = "documentai"
)

// Config holds all configuration for the document supervisor.
type Config struct {
	ProjectID string `mapstructure:"project_id"`

	// Model settings.
	ModelProvider  string `mapstructure:"model_provider"`
	ModelName      string `mapstructure:"model_name"`
	VertexAIRegion string `mapstructure:"vertex_ai_region"`
	GeminiAPIKey   string `mapstructure:"gemini_api_key"`

	// OCR settings. OCROutputBucket receives asynchronous OCR result shards;
	// empty means the source document's bucket.
	OCRProvider           string        `mapstructure:"ocr_provider"`
	OCROutputBucket       string        `mapstructure:"ocr_output_bucket"`
	OCROutputPrefix       string        `mapstructure:"ocr_output_prefix"`
	OCRPollInterval       time.Duration `mapstructure:"ocr_poll_interval"`
	OCRMaxPolls           int           `mapstructure:"ocr_max_polls"`
	DocumentAILocation    string        `mapstructure:"document_ai_location"`
	DocumentAIProcessorID string        `mapstructure:"document_ai_processor_id"`

	// Storage layout, relative to the source bucket.
	TextOutputPrefix   string `mapstructure:"text_output_prefix"`
	ResultOutputPrefix string `mapstructure:"result_output_prefix"`
	CheckpointPrefix   string `mapstructure:"checkpoint_prefix"`

	// Optional features.
	ResumeFromCheckpoint bool   `mapstructure:"resume_from_checkpoint"`
	FirestoreCollection  string `mapstructure:"firestore_collection"`
	ReportWorkflowID     string `mapstructure:"report_workflow_id"`
	WorkflowLocation     string `mapstructure:"workflow_location"`

	HTTPPort int `mapstructure:"http_port"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogOutput string `mapstructure:"log_output"`
}

var defaults = map[string]any{
	"project_id":               "",
	"model_provider":           ModelProviderVertex,
	"model_name":               "gemini-2.5-flash",
	"vertex_ai_region":         "us-central1",
	"gemini_api_key":           "",
	"ocr_provider":             OCRProviderVision,
	"ocr_output_bucket":        "",
	"ocr_output_prefix":        "ocr-output/",
	"ocr_poll_interval":        time.Second,
	"ocr_max_polls":            900,
	"document_ai_location":     "us",
	"document_ai_processor_id": "",
	"text_output_prefix":       "extracted-text/",
	"result_output_prefix":     "outputs/",
	"checkpoint_prefix":        "checkpoints/",
	"resume_from_checkpoint":   false,
	"firestore_collection":     "",
	"report_workflow_id":       "",
	"workflow_location":        "us-central1",
	"http_port":                8080,
	"log_level":                "info",
	"log_format":               "json",
	"log_output":               "stdout",
}

// Load reads the configuration from environment variables (upper-cased keys,
// e.g. PROJECT_ID) on top of the defaults and validates it.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks required settings and provider specific requirements.
func (c *Config) Validate() error {
	var errs []error

	switch c.ModelProvider {
	case ModelProviderVertex:
		if c.ProjectID == "" {
			errs = append(errs, errors.New("PROJECT_ID is required for the vertex model provider"))
		}
	case ModelProviderGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for the gemini model provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown MODEL_PROVIDER %q", c.ModelProvider))
	}

	switch c.OCRProvider {
	case OCRProviderVision:
	case OCRProviderDocumentAI:
		if c.ProjectID == "" || c.DocumentAIProcessorID == "" {
			errs = append(errs, errors.New("PROJECT_ID and DOCUMENT_AI_PROCESSOR_ID are required for the documentai OCR provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown OCR_PROVIDER %q", c.OCRProvider))
	}

	if c.OCRPollInterval <= 0 {
		errs = append(errs, errors.New("OCR_POLL_INTERVAL must be positive"))
	}
	if c.OCRMaxPolls <= 0 {
		errs = append(errs, errors.New("OCR_MAX_POLLS must be positive"))
	}
	if c.FirestoreCollection != "" && c.ProjectID == "" {
		errs = append(errs, errors.New("PROJECT_ID is required when FIRESTORE_COLLECTION is set"))
	}
	if c.ReportWorkflowID != "" && c.ProjectID == "" {
		errs = append(errs, errors.New("PROJECT_ID is required when REPORT_WORKFLOW_ID is set"))
	}

	return errors.Join(errs...)
}

// LoggerConfig returns the logger configuration from the main config.
func (c *Config) LoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:  c.LogLevel,
		Format: c.LogFormat,
		Output: c.LogOutput,
	}
}
