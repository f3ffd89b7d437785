package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// fileSchemaJSON describes the structural shape of a store File well enough
// to catch a JSON-valid-but-wrong-shape file (missing required top-level
// keys, wrong types) before it ever reaches json.Unmarshal, so such a file
// fails as a precise CORRUPT error instead of a generic unmarshal message.
const fileSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "credentials", "secrets"],
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "credentials": {"type": "array"},
    "secrets": {"type": "object"},
    "accounts": {"type": "array"},
    "agentProfiles": {"type": "array"},
    "masterKeyCheck": {"type": ["object", "null"]},
    "legacyAccessGrants": {"type": ["object", "null"]}
  }
}`

var fileSchema *jsonschema.Schema

func init() {
	compiler := jsonschema.NewCompiler()
	const resourceName = "store-file.json"
	if err := compiler.AddResource(resourceName, strings.NewReader(fileSchemaJSON)); err != nil {
		panic(fmt.Sprintf("store: compiling embedded schema: %v", err))
	}
	schema, err := compiler.Compile(resourceName)
	if err != nil {
		panic(fmt.Sprintf("store: compiling embedded schema: %v", err))
	}
	fileSchema = schema
}

// validateStructure checks raw store file bytes against fileSchema before
// any attempt to unmarshal into File, so a structurally wrong (but
// syntactically valid) JSON document is rejected with a precise pointer
// rather than an opaque unmarshal error.
func validateStructure(raw []byte) error {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: invalid json: %v", ErrCorruptFile, err)
	}
	if err := fileSchema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}
	return nil
}
