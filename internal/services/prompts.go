package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Lllllllleong/docsupervisor/internal/models"
)

// Parse contexts name the calling stage in parse failures.
const (
	ClassificationContext = "ClassificationAgent"
	ProcessingContext     = "ProcessingAgent"
)

const documentDelimiter = "--------------------------------"

// categoryDescriptions are the one-line taxonomy descriptions shown to the classifier.
var categoryDescriptions = map[models.Category]string{
	models.CategoryKYCDoc:             "Client onboarding / KYC / personal info forms",
	models.CategoryAccountStatement:   "Brokerage / bank / annuity / portfolio statements",
	models.CategorySuitabilityForm:    "Suitability / risk-profile / annuity suitability docs",
	models.CategoryQuestionsDoc:       "Internal question lists, FAQs, questionnaire docs",
	models.CategoryDataJSON:           "JSON data file used for analytics or configuration",
	models.CategoryPolicyOrDisclosure: "Disclosures, terms & conditions, prospectus-like",
	models.CategorySummaryMemo:        "Internal summary / notes / email-style text",
	models.CategoryOther:              "Anything that does not fit above",
}

// --- Classification Prompt ---

// ClassificationInstruction is the fixed taxonomy instruction of the classification stage.
var ClassificationInstruction = buildClassificationInstruction()

func buildClassificationInstruction() string {
	var sb strings.Builder
	sb.WriteString("You are ClassificationAgent for a wealth management firm.\n\n")
	sb.WriteString("Your job is to classify an input document into ONE of these categories:\n\n")
	for _, c := range models.Categories {
		fmt.Fprintf(&sb, "- %-22s → %s\n", c, categoryDescriptions[c])
	}
	sb.WriteString(`
Return STRICT JSON with this schema:

{
  "category": "<one-of-the-above>",
  "confidence": <number between 0 and 1>
}

Do not include any explanation text outside the JSON.`)
	return sb.String()
}

// BuildClassificationPrompt combines the taxonomy instruction with the document text.
func BuildClassificationPrompt(text string) string {
	var sb strings.Builder
	sb.WriteString(ClassificationInstruction)
	sb.WriteString("\n\nHere is the full document text:\n")
	sb.WriteString(documentDelimiter + "\n")
	sb.WriteString(text)
	sb.WriteString("\n" + documentDelimiter + "\n\n")
	sb.WriteString("Now respond with ONLY the JSON object as specified.")
	return sb.String()
}

// --- Processing Prompt ---

// ProcessingInstruction describes the output shape of the extraction stage.
// The per-category guidance is advisory; nothing enforces it.
const ProcessingInstruction = `You are ProcessingAgent for a wealth management firm.

You receive:
1. The full document text.
2. A JSON classification object with fields:
   - category
   - confidence

Based on the category, perform specialized processing and
return a single JSON object with this general shape:

{
  "category": "<copied from input>",
  "summary": "<2-4 sentence natural-language summary>",
  "key_entities": {
      "clients": [...],
      "advisors": [...],
      "accounts": [...],
      "tickers": [...]
  },
  "extracted_fields": {
      // For KYC_DOC: name, DOB, address, risk_tolerance, ...
      // For ACCOUNT_STATEMENT: period, total_value, cash_balance, holdings, ...
      // For SUITABILITY_FORM: product_type, risk_profile, time_horizon, ...
      // For QUESTIONS_DOC: main_questions, themes, ...
      // For DATA_JSON: describe structure and fields
      // For POLICY_OR_DISCLOSURE: product_name, issuer, key_risks, fees, ...
      // For SUMMARY_MEMO: main_points, action_items, owners, dates, ...
      // For OTHER: main_points, themes, ...
  }
}

Be concise but informative. Always return VALID JSON only.`

// BuildProcessingPrompt combines the processing instruction, the
// classification and the document text.
func BuildProcessingPrompt(text string, classification *models.Classification) (string, error) {
	classificationJSON, err := json.MarshalIndent(classification, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal classification: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(ProcessingInstruction)
	sb.WriteString("\n\nDocument classification JSON:\n")
	sb.Write(classificationJSON)
	sb.WriteString("\n\nDocument text:\n")
	sb.WriteString(documentDelimiter + "\n")
	sb.WriteString(text)
	sb.WriteString("\n" + documentDelimiter + "\n\n")
	sb.WriteString("Now produce the output JSON exactly as specified in your instructions above. ")
	sb.WriteString("Return ONLY JSON, no extra text.")
	return sb.String(), nil
}
