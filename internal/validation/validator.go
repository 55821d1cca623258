package validation

import "encoding/json"

// Validator checks event payloads before they reach the append path.
// Producer surfaces (CLI, MCP tools) validate; the log itself only requires
// well-formed JSON, so foreign events can still be replayed.
type Validator interface {
	ValidatePayload(eventType string, payload json.RawMessage) error
}
