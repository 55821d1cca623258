package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/courierhq/courier/pkg/schema"
)

// Payload schemas embedded as constants to avoid filesystem dependencies.
// JSON Schema Draft 2020-12.

const messageSentSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://courierhq.dev/schemas/message-sent.json",
  "type": "object",
  "required": ["message", "sent_at"],
  "properties": {
    "event_id": { "type": "string" },
    "message": {
      "type": "object",
      "required": ["message_id", "from_agent", "to_agent"],
      "properties": {
        "message_id": { "type": "string", "minLength": 1 },
        "from_agent": { "type": "string", "minLength": 1 },
        "to_agent": { "type": "string", "minLength": 1 },
        "subject": { "type": "string" },
        "body": { "type": "string" },
        "priority": {
          "type": "string",
          "enum": ["low", "normal", "high", "urgent"]
        },
        "created_at": { "type": "string", "format": "date-time" }
      },
      "additionalProperties": false
    },
    "sent_at": { "type": "string", "format": "date-time" }
  },
  "additionalProperties": false
}`

const messageAckSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://courierhq.dev/schemas/message-ack.json",
  "type": "object",
  "required": ["correlation_id"],
  "properties": {
    "correlation_id": { "type": "string", "minLength": 1 },
    "acknowledged_by": { "type": "string" },
    "acknowledged_at": { "type": "string", "format": "date-time" }
  },
  "additionalProperties": false
}`

const messageCompletedSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://courierhq.dev/schemas/message-completed.json",
  "type": "object",
  "required": ["correlation_id"],
  "properties": {
    "correlation_id": { "type": "string", "minLength": 1 },
    "result": { "type": "string" },
    "success": { "type": "boolean" },
    "completed_at": { "type": "string", "format": "date-time" }
  },
  "additionalProperties": false
}`

const noteSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://courierhq.dev/schemas/note.json",
  "type": "object",
  "required": ["agent_id", "title", "content"],
  "properties": {
    "agent_id": { "type": "string", "minLength": 1 },
    "title": { "type": "string", "minLength": 1 },
    "content": { "type": "string", "minLength": 1 },
    "tags": {
      "type": "array",
      "items": { "type": "string" }
    },
    "related_file": { "type": "string" },
    "related_feature": { "type": "string" }
  },
  "additionalProperties": false
}`

// JSONSchemaValidator implements the Validator interface using JSON Schema
// Draft 2020-12. All schemas are pre-compiled; safe for concurrent use.
type JSONSchemaValidator struct {
	byEventType map[string]*jsonschema.Schema
}

// NewJSONSchemaValidator compiles the payload schemas for every known event
// type. All ten note categories share the note schema.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	compiled := make(map[string]*jsonschema.Schema, 4)
	for name, raw := range map[string]string{
		"message-sent":      messageSentSchemaJSON,
		"message-ack":       messageAckSchemaJSON,
		"message-completed": messageCompletedSchemaJSON,
		"note":              noteSchemaJSON,
	} {
		url := fmt.Sprintf("https://courierhq.dev/schemas/%s.json", name)
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("unmarshal %s schema: %w", name, err)
		}
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("add %s schema resource: %w", name, err)
		}
		if compiled[name], err = c.Compile(url); err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", name, err)
		}
	}

	byEventType := map[string]*jsonschema.Schema{
		schema.EventMessageSent:         compiled["message-sent"],
		schema.EventMessageAcknowledged: compiled["message-ack"],
		schema.EventMessageCompleted:    compiled["message-completed"],
	}
	for _, category := range schema.NoteCategories {
		byEventType[schema.NoteEventType(category)] = compiled["note"]
	}

	return &JSONSchemaValidator{byEventType: byEventType}, nil
}

// ValidatePayload validates a payload against the schema for its event type.
func (v *JSONSchemaValidator) ValidatePayload(eventType string, payload json.RawMessage) error {
	compiled, ok := v.byEventType[eventType]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown event type %q", eventType)
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(payload)))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "payload is not valid JSON").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return toCourierError(err)
	}
	return nil
}

// toCourierError converts a jsonschema.ValidationError into a CourierError
// with clear, actionable messages for agent consumption.
func toCourierError(err error) *schema.CourierError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}

var _ Validator = (*JSONSchemaValidator)(nil)
