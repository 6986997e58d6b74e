package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// objectPattern spans from the first '{' to the last '}' across lines.
var objectPattern = regexp.MustCompile(`(?s)\{.*\}`)

func stripCodeFences(responseText string) string {
	responseText = strings.TrimSpace(responseText)
	responseText = strings.TrimPrefix(responseText, "```json")
	responseText = strings.TrimPrefix(responseText, "```JSON")
	responseText = strings.TrimPrefix(responseText, "```")
	responseText = strings.TrimSuffix(responseText, "```")
	return strings.TrimSpace(responseText)
}

// ParseJSONObject decodes the single JSON object a model response is expected
// to contain. Markdown fences are stripped first; if that is not enough, the
// outermost {...} span is cut out of the surrounding prose and decoded.
// The returned string is the JSON text that decoded.
func ParseJSONObject(responseText string) (map[string]any, string, error) {
	cleaned := stripCodeFences(responseText)
	if cleaned == "" {
		return nil, "", errors.New("empty response")
	}

	obj, err := decodeObject(cleaned)
	if err == nil {
		return obj, cleaned, nil
	}

	span := objectPattern.FindString(cleaned)
	if span == "" {
		return nil, "", fmt.Errorf("parsing LLM response: %w (response: %s)", err, truncate(cleaned, 200))
	}
	obj, spanErr := decodeObject(span)
	if spanErr != nil {
		return nil, "", fmt.Errorf("parsing LLM response: %w (response: %s)", spanErr, truncate(cleaned, 200))
	}
	return obj, span, nil
}

func decodeObject(text string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("response is not a JSON object")
	}
	return obj, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
