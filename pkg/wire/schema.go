package wire

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// envelopeSchema constrains the outer Command shape. The payload body is
// validated separately against the per-type schema.
const envelopeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type", "id", "protocol_version"],
  "properties": {
    "type": {
      "type": "string",
      "enum": ["apply", "revert", "audit", "drift", "list_policies", "history", "get_state", "ping"]
    },
    "id": {"type": "string", "minLength": 1, "maxLength": 64},
    "protocol_version": {"const": 1},
    "timestamp": {"type": "string"},
    "payload": {"type": "object"}
  },
  "additionalProperties": false
}`

const applySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "policy_ids": {
      "type": "array",
      "items": {"type": "string", "minLength": 1, "maxLength": 128},
      "maxItems": 512
    },
    "all": {"type": "boolean"},
    "continue_on_error": {"type": "boolean"},
    "skip_recommended": {"type": "boolean"},
    "skip_checkpoint": {"type": "boolean"},
    "dry_run": {"type": "boolean"}
  },
  "additionalProperties": false,
  "anyOf": [
    {"required": ["policy_ids"], "properties": {"policy_ids": {"minItems": 1}}},
    {"required": ["all"], "properties": {"all": {"const": true}}}
  ]
}`

const revertSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "policy_ids": {
      "type": "array",
      "items": {"type": "string", "minLength": 1, "maxLength": 128},
      "maxItems": 512
    },
    "all": {"type": "boolean"},
    "continue_on_error": {"type": "boolean"},
    "skip_checkpoint": {"type": "boolean"}
  },
  "additionalProperties": false,
  "anyOf": [
    {"required": ["policy_ids"], "properties": {"policy_ids": {"minItems": 1}}},
    {"required": ["all"], "properties": {"all": {"const": true}}}
  ]
}`

const auditSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "policy_ids": {
      "type": "array",
      "items": {"type": "string", "minLength": 1, "maxLength": 128},
      "maxItems": 512
    }
  },
  "additionalProperties": false
}`

const driftSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "snapshot_id": {"type": "string", "maxLength": 64}
  },
  "additionalProperties": false
}`

const historySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "policy_id": {"type": "string", "maxLength": 128},
    "snapshot_id": {"type": "string", "maxLength": 64},
    "operation": {"type": "string", "enum": ["apply", "revert"]},
    "mechanism": {
      "type": "string",
      "enum": ["registry", "service", "scheduled_task", "firewall", "script"]
    },
    "success": {"type": "boolean"},
    "limit": {"type": "integer", "minimum": 1, "maximum": 1000},
    "offset": {"type": "integer", "minimum": 0}
  },
  "additionalProperties": false
}`

const listPoliciesSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "mechanism": {
      "type": "string",
      "enum": ["registry", "service", "scheduled_task", "firewall", "script"]
    },
    "risk": {"type": "string", "enum": ["low", "medium", "high", "critical"]}
  },
  "additionalProperties": false
}`

const emptySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false
}`

// Validator checks inbound commands against the protocol schemas. It is
// immutable after construction and safe for concurrent use.
type Validator struct {
	envelope *jsonschema.Schema
	payloads map[CommandType]*jsonschema.Schema
}

// NewValidator compiles the envelope and payload schemas.
func NewValidator() (*Validator, error) {
	sources := map[CommandType]string{
		CommandApply:        applySchema,
		CommandRevert:       revertSchema,
		CommandAudit:        auditSchema,
		CommandDrift:        driftSchema,
		CommandHistory:      historySchema,
		CommandListPolicies: listPoliciesSchema,
		CommandGetState:     emptySchema,
		CommandPing:         emptySchema,
	}

	envelope, err := compileSchema("palisade://wire/envelope.json", envelopeSchema)
	if err != nil {
		return nil, err
	}

	payloads := make(map[CommandType]*jsonschema.Schema, len(sources))
	for t, src := range sources {
		url := fmt.Sprintf("palisade://wire/%s.json", t)
		schema, err := compileSchema(url, src)
		if err != nil {
			return nil, err
		}
		payloads[t] = schema
	}

	return &Validator{envelope: envelope, payloads: payloads}, nil
}

func compileSchema(url, source string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(url, strings.NewReader(source)); err != nil {
		return nil, fmt.Errorf("adding schema %s: %w", url, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compiling schema %s: %w", url, err)
	}
	return schema, nil
}

// Decode validates raw against the envelope schema, then the payload schema
// for its command type, and only then unmarshals into a Command. Any
// violation comes back as a *ValidationError; raw is never partially
// trusted.
func (v *Validator) Decode(raw []byte) (*Command, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, NewValidationError("invalid JSON: " + err.Error())
	}

	if err := v.envelope.Validate(doc); err != nil {
		return nil, &ValidationError{Issues: schemaIssues(err)}
	}

	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return nil, NewValidationError("decoding envelope: " + err.Error())
	}

	schema, ok := v.payloads[cmd.Type]
	if !ok {
		return nil, NewValidationError(fmt.Sprintf("unsupported command type %q", cmd.Type))
	}

	payload := cmd.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	var body any
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, NewValidationError("invalid payload JSON: " + err.Error())
	}
	if err := schema.Validate(body); err != nil {
		return nil, &ValidationError{Issues: schemaIssues(err)}
	}

	return &cmd, nil
}

// schemaIssues flattens a jsonschema validation error into leaf messages.
func schemaIssues(err error) []string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}

	var issues []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			issues = append(issues, fmt.Sprintf("%s: %s", loc, e.Message))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return issues
}
