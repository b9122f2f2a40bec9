// Package dispatch sends converted payloads at the target endpoint with
// bounded concurrency, per-target rate limiting, timeouts, and retries.
package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aspexa/automa/pkg/models"
)

// PayloadPlaceholder is the substitution marker in the body template.
const PayloadPlaceholder = "{{PAYLOAD}}"

// Target describes the endpoint one campaign attacks. BodyTemplate is a
// JSON document containing PayloadPlaceholder; ResponsePath is a JSON
// pointer into the target's reply ("/choices/0/message/content"). An empty
// ResponsePath treats the whole body as the response text.
type Target struct {
	URL          string                `json:"url"`
	Protocol     models.TargetProtocol `json:"protocol"`
	BodyTemplate string                `json:"body_template"`
	ResponsePath string                `json:"response_path,omitempty"`
	Headers      map[string]string     `json:"headers,omitempty"`
}

// Validate checks the target is dispatchable.
func (t Target) Validate() error {
	if t.URL == "" {
		return models.ValidationErrorf("target url must not be empty")
	}
	switch t.Protocol {
	case models.ProtocolHTTP, models.ProtocolWebSocket:
	default:
		return models.ValidationErrorf("unsupported target protocol %q", t.Protocol)
	}
	if t.BodyTemplate != "" && !strings.Contains(t.BodyTemplate, PayloadPlaceholder) {
		return models.ValidationErrorf("body_template must contain %s", PayloadPlaceholder)
	}
	return nil
}

// renderBody substitutes the payload into the body template. The payload
// is JSON-escaped so templates stay valid JSON regardless of converter
// output. With no template, the body is {"message": payload}.
func (t Target) renderBody(payload string) (string, error) {
	escaped, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to escape payload: %w", err)
	}
	// Strip the surrounding quotes: the template provides its own.
	inner := string(escaped[1 : len(escaped)-1])

	if t.BodyTemplate == "" {
		return fmt.Sprintf(`{"message": "%s"}`, inner), nil
	}
	return strings.ReplaceAll(t.BodyTemplate, PayloadPlaceholder, inner), nil
}

// extractResponse pulls the response text out of the target's reply body.
func (t Target) extractResponse(body []byte) (string, error) {
	if t.ResponsePath == "" {
		return string(body), nil
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("response is not JSON but response_path is set: %w", err)
	}

	value, err := resolvePointer(doc, t.ResponsePath)
	if err != nil {
		return "", err
	}

	switch v := value.(type) {
	case string:
		return v, nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to encode response value: %w", err)
		}
		return string(encoded), nil
	}
}
