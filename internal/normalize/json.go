package normalize

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
)

var errNotObject = errors.New("JSON value is not an object")

// ExtractJSON recovers a JSON object from model output. The full text is
// parsed first; when that fails only the span between the first '{' and the
// last '}' is parsed, which drops narration the model put around the object.
// context names the calling stage and is carried by the returned *ParseError.
func ExtractJSON(text, context string) (map[string]any, error) {
	obj, err := decodeObject(text)
	if err == nil {
		return obj, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, &ParseError{Context: context, Text: text, Err: err}
	}

	log.Warn().Str("context", context).Err(err).Msg("non-pure JSON, attempting inner braces only")
	obj, err = decodeObject(text[start : end+1])
	if err != nil {
		return nil, &ParseError{Context: context, Text: text, Err: err}
	}
	return obj, nil
}

func decodeObject(text string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, err
	}
	// "null" decodes without error into a nil map.
	if obj == nil {
		return nil, errNotObject
	}
	return obj, nil
}
