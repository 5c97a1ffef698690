package testutil

import (
	"bufio"
	"encoding/json"
	"strings"
	"testing"
)

// StreamPayload is one decoded payload from an answer stream. Type is the
// payload's discriminator ("metadata", "token", "done") or "error" when the
// payload carries an error field instead.
type StreamPayload struct {
	Type string
	Raw  string
	Body map[string]any
}

// ParseStream parses a streamed response body into its payloads. It accepts
// both framings the server produces: SSE-style "data: " lines separated by
// blank lines, and NDJSON with one "data: " line per payload. Non-payload
// lines (blank separators) are skipped; anything else fails the test.
func ParseStream(t *testing.T, body string) []StreamPayload {
	t.Helper()

	var payloads []StreamPayload
	scanner := bufio.NewScanner(strings.NewReader(body))
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			t.Fatalf("stream parse error at line %d: unexpected line %q", lineNum, line)
		}
		raw := strings.TrimPrefix(line, "data: ")

		var decoded map[string]any
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			t.Fatalf("stream parse error at line %d: invalid JSON payload %q: %v", lineNum, raw, err)
		}

		p := StreamPayload{Raw: raw, Body: decoded}
		if _, ok := decoded["error"]; ok {
			p.Type = "error"
		} else if typ, ok := decoded["type"].(string); ok {
			p.Type = typ
		}
		payloads = append(payloads, p)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("stream scan error: %v", err)
	}

	return payloads
}

// FindPayload returns the first payload of the given type, or nil.
func FindPayload(payloads []StreamPayload, typ string) *StreamPayload {
	for i := range payloads {
		if payloads[i].Type == typ {
			return &payloads[i]
		}
	}
	return nil
}

// FilterPayloads returns all payloads of the given type.
func FilterPayloads(payloads []StreamPayload, typ string) []StreamPayload {
	var found []StreamPayload
	for _, p := range payloads {
		if p.Type == typ {
			found = append(found, p)
		}
	}
	return found
}
