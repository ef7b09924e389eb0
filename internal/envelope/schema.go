package envelope

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// typeSchemas holds the additional-properties-free JSON Schema for the
// fields specific to one envelope type. Structural checks (string
// non-emptiness, enum membership) are still done by hand in envelope.go,
// which needs to distinguish "missing" from "wrong type" for precise
// rejection reasons; the schema pass below is a coarse first filter that
// catches the wrong-shape cases before the typed decode runs, the way a
// wire-format gate sits in front of application-level validation.
var typeSchemas = map[string]string{
	string_handshake: `{
		"type": "object",
		"required": ["sessionId", "token"],
		"properties": {
			"sessionId": {"type": "string"},
			"token": {"type": "string"},
			"capabilities": {"type": "array", "items": {"type": "string"}}
		}
	}`,
	string_handshake_ack: `{
		"type": "object",
		"required": ["sessionId", "accepted", "heartbeatMs"],
		"properties": {
			"sessionId": {"type": "string"},
			"accepted": {"type": "boolean"},
			"heartbeatMs": {"type": "integer", "minimum": 1000, "maximum": 120000}
		}
	}`,
	string_action: `{
		"type": "object",
		"required": ["op", "target", "payload", "idempotencyKey"],
		"properties": {
			"op": {"type": "string", "minLength": 1},
			"target": {"type": "string", "minLength": 1},
			"payload": {"type": "object"},
			"idempotencyKey": {"type": "string", "minLength": 1}
		}
	}`,
	string_ack: `{
		"type": "object",
		"required": ["correlationId", "status"],
		"properties": {
			"correlationId": {"type": "string", "minLength": 1},
			"status": {"enum": ["received", "applied", "duplicate", "skipped", "rejected"]},
			"legacyStatus": {"enum": ["applied", "duplicate", "skipped_ambiguous", "skipped_unmanaged", "rejected_invalid"]}
		}
	}`,
	string_error: `{
		"type": "object",
		"required": ["code", "message", "retryable"],
		"properties": {
			"code": {"type": "string", "minLength": 1},
			"message": {"type": "string", "minLength": 1},
			"retryable": {"type": "boolean"},
			"details": {"type": "object"}
		}
	}`,
	string_heartbeat_pong: `{
		"type": "object",
		"required": ["correlationId"],
		"properties": {
			"correlationId": {"type": "string", "minLength": 1}
		}
	}`,
}

// These mirror wire.Type string values as plain string constants, the
// key type of typeSchemas.
const (
	string_handshake      = "handshake"
	string_handshake_ack  = "handshake_ack"
	string_action         = "action"
	string_ack            = "ack"
	string_error          = "error"
	string_heartbeat_pong = "heartbeat_pong"
)

var (
	schemaOnce sync.Once
	compiled   map[string]*jsonschema.Schema
	compileErr error
)

func compiledSchemas() (map[string]*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiled = make(map[string]*jsonschema.Schema, len(typeSchemas))
		for typ, raw := range typeSchemas {
			id := "mem://envelope/" + typ + ".json"
			doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
			if err != nil {
				compileErr = fmt.Errorf("unmarshal schema for %s: %w", typ, err)
				return
			}
			if err := compiler.AddResource(id, doc); err != nil {
				compileErr = fmt.Errorf("add schema resource for %s: %w", typ, err)
				return
			}
			schema, err := compiler.Compile(id)
			if err != nil {
				compileErr = fmt.Errorf("compile schema for %s: %w", typ, err)
				return
			}
			compiled[typ] = schema
		}
	})
	return compiled, compileErr
}

// validateShape runs the coarse JSON-Schema pass for typ against the
// decoded (map[string]any) record. Types without a registered schema
// (heartbeat_ping has no extra required fields) always pass.
func validateShape(typ string, record map[string]any) error {
	schemas, err := compiledSchemas()
	if err != nil {
		return fmt.Errorf("envelope schema compilation failed: %w", err)
	}
	schema, ok := schemas[typ]
	if !ok {
		return nil
	}
	if err := schema.Validate(record); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
