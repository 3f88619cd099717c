package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSONPayload locates the first balanced JSON object inside a
// free-form model response and decodes it. The service promises JSON but
// delivers prose, markdown fences and half-finished objects often enough
// that this boundary has to accept any text.
func ExtractJSONPayload(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)

	// Remove opening markdown code blocks if present
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	end, err := findBalancedEnd(text, start)
	if err != nil {
		return nil, err
	}

	payload := make(map[string]any)
	if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}
	return payload, nil
}

// findBalancedEnd walks the text from the opening brace, tracking string
// literals and escapes, and returns the index of the matching close brace.
func findBalancedEnd(text string, start int) (int, error) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unbalanced JSON object in response")
}
