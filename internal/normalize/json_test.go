package normalize

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_RoundTrip(t *testing.T) {
	objects := []map[string]any{
		{},
		{"category": "SUMMARY_MEMO", "confidence": 0.9},
		{"nested": map[string]any{"list": []any{1.0, "two", nil, true}}, "empty": ""},
		{"unicode": "Größe – 値", "escaped": "He said \"hi\" {not a brace}"},
	}

	for _, obj := range objects {
		raw, err := json.Marshal(obj)
		require.NoError(t, err)

		got, err := ExtractJSON(string(raw), "RoundTrip")
		require.NoError(t, err)
		assert.Equal(t, obj, got)
	}
}

func TestExtractJSON_Narration(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]any
	}{
		{
			name:  "leading and trailing noise",
			input: `noise {"a":1,"b":[2,3]} trailing noise`,
			want:  map[string]any{"a": 1.0, "b": []any{2.0, 3.0}},
		},
		{
			name:  "markdown fence",
			input: "```json\n{\"category\": \"KYC_DOC\", \"confidence\": 0.7}\n```",
			want:  map[string]any{"category": "KYC_DOC", "confidence": 0.7},
		},
		{
			name:  "conversational preamble",
			input: "Sure! Here is the classification you asked for:\n\n{\"category\": \"OTHER\"}\n\nLet me know if you need more.",
			want:  map[string]any{"category": "OTHER"},
		},
		{
			name:  "nested objects keep outermost braces",
			input: `Result: {"outer": {"inner": {"deep": "value"}}} done`,
			want:  map[string]any{"outer": map[string]any{"inner": map[string]any{"deep": "value"}}},
		},
		{
			name:  "surrounding whitespace only",
			input: "  \n{\"ok\": true}\n ",
			want:  map[string]any{"ok": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input, "TestStage")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSON_Failures(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "plain prose", input: "not json at all"},
		{name: "empty", input: ""},
		{name: "null literal", input: "null"},
		{name: "array", input: "[1, 2, 3]"},
		{name: "braces in wrong order", input: "} oops {"},
		{name: "two objects", input: `{"a": 1} and {"b": 2}`},
		{name: "broken object", input: `here {"a": 1,} there`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input, "ClassificationAgent")
			require.Error(t, err)
			assert.Nil(t, got)
			assert.ErrorIs(t, err, ErrUnparseable)
			assert.Contains(t, err.Error(), "ClassificationAgent")

			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, "ClassificationAgent", perr.Context)
			assert.Equal(t, tt.input, perr.Text)
			assert.NotNil(t, perr.Err)
		})
	}
}

func TestParseError_MessageCarriesText(t *testing.T) {
	_, err := ExtractJSON("not json at all", "ProcessingAgent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ProcessingAgent")
	assert.Contains(t, err.Error(), `"not json at all"`)
}
