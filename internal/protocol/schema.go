package protocol

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/req.schema.json
var reqSchemaJSON string

var reqSchema = jsonschema.MustCompileString("req.schema.json", reqSchemaJSON)

// ValidateRequest checks a decoded REQ against the request schema. The JSON
// form of the struct is validated so both codecs go through the same rules.
func ValidateRequest(m ReqMsg) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if err := reqSchema.Validate(v); err != nil {
		return fmt.Errorf("req schema: %w", err)
	}
	return nil
}

// ValidateRawRequest validates raw JSON bytes, before they are decoded into ReqMsg.
func ValidateRawRequest(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if err := reqSchema.Validate(v); err != nil {
		return fmt.Errorf("req schema: %w", err)
	}
	return nil
}
