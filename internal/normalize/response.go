// Package normalize turns whatever a model client returned into text and
// recovers JSON objects from that text.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	geminigenai "github.com/google/generative-ai-go/genai"
)

// TextBlock is a content block that carries text.
type TextBlock interface {
	Text() string
}

// ContentMessage is a message made of content blocks.
type ContentMessage interface {
	Content() []TextBlock
}

// Messenger exposes a plain message string.
type Messenger interface {
	Message() string
}

// adapter recovers text from one known response shape.
type adapter struct {
	name    string
	extract func(resp any) (string, bool)
}

// adapters are tried in order; the first match wins.
var adapters = []adapter{
	{name: "vertex", extract: fromVertexResponse},
	{name: "gemini", extract: fromGeminiResponse},
	{name: "raw", extract: fromRaw},
	{name: "content-blocks", extract: fromContentMap},
	{name: "text-fields", extract: fromTextFields},
	{name: "content-accessor", extract: fromContentAccessor},
	{name: "message-accessor", extract: fromMessageAccessor},
	{name: "text-accessor", extract: fromTextAccessor},
}

// ToText returns the text carried by a model response. It never fails:
// unknown shapes are rendered with fmt.
func ToText(resp any) string {
	text, _ := Detect(resp)
	return text
}

// Detect is ToText that also names the adapter that matched, or "fallback".
func Detect(resp any) (string, string) {
	for _, a := range adapters {
		if text, ok := a.extract(resp); ok {
			return text, a.name
		}
	}
	return fmt.Sprintf("%v", resp), "fallback"
}

func fromVertexResponse(resp any) (string, bool) {
	r, ok := resp.(*vertexgenai.GenerateContentResponse)
	if !ok || r == nil || len(r.Candidates) == 0 || r.Candidates[0].Content == nil {
		return "", false
	}
	var sb strings.Builder
	var found bool
	for _, part := range r.Candidates[0].Content.Parts {
		if txt, ok := part.(vertexgenai.Text); ok {
			sb.WriteString(string(txt))
			found = true
		}
	}
	return sb.String(), found
}

func fromGeminiResponse(resp any) (string, bool) {
	r, ok := resp.(*geminigenai.GenerateContentResponse)
	if !ok || r == nil || len(r.Candidates) == 0 || r.Candidates[0].Content == nil {
		return "", false
	}
	var sb strings.Builder
	var found bool
	for _, part := range r.Candidates[0].Content.Parts {
		if txt, ok := part.(geminigenai.Text); ok {
			sb.WriteString(string(txt))
			found = true
		}
	}
	return sb.String(), found
}

func fromRaw(resp any) (string, bool) {
	switch v := resp.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case json.RawMessage:
		return string(v), true
	}
	return "", false
}

// fromContentMap handles {"role": "assistant", "content": [{"text": "..."}]}.
func fromContentMap(resp any) (string, bool) {
	m, ok := resp.(map[string]any)
	if !ok {
		return "", false
	}
	var first any
	switch blocks := m["content"].(type) {
	case []any:
		if len(blocks) == 0 {
			return "", false
		}
		first = blocks[0]
	case []map[string]any:
		if len(blocks) == 0 {
			return "", false
		}
		first = blocks[0]
	default:
		return "", false
	}
	block, ok := first.(map[string]any)
	if !ok {
		return "", false
	}
	text, ok := block["text"]
	if !ok {
		return "", false
	}
	if s, ok := text.(string); ok {
		return s, true
	}
	return fmt.Sprintf("%v", text), true
}

func fromTextFields(resp any) (string, bool) {
	m, ok := resp.(map[string]any)
	if !ok {
		return "", false
	}
	for _, key := range []string{"text", "message", "output"} {
		if s, ok := m[key].(string); ok {
			return s, true
		}
	}
	return "", false
}

func fromContentAccessor(resp any) (string, bool) {
	c, ok := resp.(ContentMessage)
	if !ok {
		return "", false
	}
	blocks := c.Content()
	if len(blocks) == 0 || blocks[0] == nil {
		return "", false
	}
	return blocks[0].Text(), true
}

func fromMessageAccessor(resp any) (string, bool) {
	if m, ok := resp.(Messenger); ok {
		return m.Message(), true
	}
	return "", false
}

func fromTextAccessor(resp any) (string, bool) {
	if t, ok := resp.(TextBlock); ok {
		return t.Text(), true
	}
	return "", false
}
