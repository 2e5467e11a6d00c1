package bootstrap

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/boshu2/gatekeeper/internal/gkerrors"
)

const payloadSchemaURL = "gatekeeper://bootstrap-payload.schema.json"

const payloadSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["repo_id", "timestamp", "nonce", "action"],
	"properties": {
		"repo_id": {"type": "string", "minLength": 1},
		"timestamp": {"type": "string", "format": "date-time"},
		"nonce": {"type": "string", "minLength": 8},
		"action": {"type": "string", "enum": ["bootstrap_first_plan"]}
	},
	"additionalProperties": false
}`

var (
	payloadSchemaOnce sync.Once
	payloadSchema     *jsonschema.Schema
	payloadSchemaErr  error
)

func compiledPayloadSchema() (*jsonschema.Schema, error) {
	payloadSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(payloadSchemaURL, strings.NewReader(payloadSchemaJSON)); err != nil {
			payloadSchemaErr = err
			return
		}
		payloadSchema, payloadSchemaErr = compiler.Compile(payloadSchemaURL)
	})
	return payloadSchema, payloadSchemaErr
}

// ValidatePayloadShape validates the raw JSON bytes of a bootstrap payload
// against the fixed schema, reporting malformed or extraneous fields with a
// structured error. Neither Verify nor Attempt calls it; MAC verification
// does not depend on it.
func ValidatePayloadShape(raw []byte) error {
	schema, err := compiledPayloadSchema()
	if err != nil {
		return gkerrors.Wrap(gkerrors.PhasePlan, gkerrors.CodeBootstrapSignatureBad,
			"failed to compile bootstrap payload schema", err)
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return gkerrors.Wrap(gkerrors.PhasePlan, gkerrors.CodeBootstrapSignatureBad,
			"bootstrap payload is not valid JSON", err)
	}
	if err := schema.Validate(doc); err != nil {
		return gkerrors.Wrap(gkerrors.PhasePlan, gkerrors.CodeBootstrapSignatureBad,
			"bootstrap payload failed schema validation", err)
	}
	return nil
}
