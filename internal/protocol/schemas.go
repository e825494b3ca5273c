package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBase = "https://voxelfall.ai/schemas/"

// inboundSchemas maps client message types to their schema file.
var inboundSchemas = map[string]string{
	TypeHello:     "hello.schema.json",
	TypePos:       "pos.schema.json",
	TypeCollision: "collision.schema.json",
	TypeChat:      "chat.schema.json",
}

// Validator checks raw JSON messages against the embedded schemas.
type Validator struct {
	byName map[string]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	names, err := fs.Glob(schemaFS, "schemas/*.schema.json")
	if err != nil {
		return nil, err
	}
	for _, p := range names {
		b, err := schemaFS.ReadFile(p)
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBase+p[len("schemas/"):], bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("schema %s: %w", p, err)
		}
	}
	v := &Validator{byName: map[string]*jsonschema.Schema{}}
	for _, p := range names {
		name := p[len("schemas/"):]
		s, err := c.Compile(schemaBase + name)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		v.byName[name] = s
	}
	return v, nil
}

// ValidateValue validates a decoded JSON value against the named schema file.
func (v *Validator) ValidateValue(name string, doc any) error {
	s, ok := v.byName[name]
	if !ok {
		return fmt.Errorf("unknown schema: %s", name)
	}
	return s.Validate(doc)
}

// Inbound decodes the envelope of a client message and validates the whole
// message against the schema registered for its type.
func (v *Validator) Inbound(raw []byte) (BaseMessage, error) {
	base, err := DecodeBase(raw)
	if err != nil {
		return base, err
	}
	name, ok := inboundSchemas[base.Type]
	if !ok {
		return base, fmt.Errorf("unsupported message type: %q", base.Type)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return base, err
	}
	if err := v.ValidateValue(name, doc); err != nil {
		return base, fmt.Errorf("%s: %w", base.Type, err)
	}
	return base, nil
}
