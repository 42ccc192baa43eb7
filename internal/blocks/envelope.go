package blocks

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const envelopeSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["blocks"],
	"properties": {
		"blocks": {"type": "array", "minItems": 1}
	}
}`

// ErrMalformedEnvelope is returned when oracle output is not a JSON object
// with a non-empty blocks list.
var ErrMalformedEnvelope = errors.New("malformed block envelope")

var envelopeSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(envelopeSchemaJSON))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("envelope.json", doc); err != nil {
		return nil, err
	}
	return c.Compile("envelope.json")
})

// ParseEnvelope decodes raw oracle output of the form {"blocks": [...]} and
// returns the untrusted block elements.
func ParseEnvelope(raw string) ([]any, error) {
	sch, err := envelopeSchema()
	if err != nil {
		return nil, fmt.Errorf("compiling envelope schema: %w", err)
	}

	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(trimFence(raw)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if err := sch.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	list, _ := inst.(map[string]any)["blocks"].([]any)
	return list, nil
}

// trimFence strips a markdown code fence some models wrap JSON in.
func trimFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
