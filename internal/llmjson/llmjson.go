// Package llmjson parses JSON payloads out of LLM responses.
package llmjson

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Extract returns the JSON value embedded in an LLM response. It tries the
// raw text first, then strips markdown code fences, then falls back to the
// first balanced JSON object in surrounding prose. The returned bytes are
// always valid JSON, so callers can re-decode them strictly.
func Extract(text string) ([]byte, error) {
	raw := bytes.TrimSpace([]byte(text))
	if json.Valid(raw) {
		return raw, nil
	}

	cleaned := cleanJSON(raw)
	if json.Valid(cleaned) {
		return cleaned, nil
	}

	extracted := extractObject(cleaned)
	if extracted == nil {
		return nil, fmt.Errorf("no JSON object in response")
	}
	if !json.Valid(extracted) {
		return nil, fmt.Errorf("extracted object is not valid JSON")
	}
	return extracted, nil
}

// Parse decodes an LLM response into T via Extract.
func Parse[T any](text string) (*T, error) {
	raw, err := Extract(text)
	if err != nil {
		return nil, err
	}
	var result T
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parse extracted JSON: %w", err)
	}
	return &result, nil
}

// cleanJSON strips markdown code fences and leading/trailing whitespace from
// LLM responses. Models often wrap JSON in ```json ... ``` blocks. This
// handles: ```json\n{...}\n```, ```\n{...}\n```, and bare JSON.
func cleanJSON(data []byte) []byte {
	s := bytes.TrimSpace(data)
	if len(s) == 0 {
		return s
	}

	if bytes.HasPrefix(s, []byte("```")) {
		// Strip opening fence line
		if idx := bytes.IndexByte(s, '\n'); idx >= 0 {
			s = s[idx+1:]
		}
		// Strip closing fence
		if bytes.HasSuffix(s, []byte("```")) {
			s = s[:len(s)-3]
		}
		s = bytes.TrimSpace(s)
	}

	return s
}

// extractObject returns the first balanced {...} span in s, or nil if none
// closes. Braces inside JSON strings are skipped.
func extractObject(s []byte) []byte {
	start := bytes.IndexByte(s, '{')
	if start < 0 {
		return nil
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
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
				return s[start : i+1]
			}
		}
	}
	return nil
}
