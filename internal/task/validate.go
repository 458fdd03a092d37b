package task

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tailscale/hujson"
)

const schemaURL = "taskdeck://tasks.schema.json"

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	raw, err := SchemaJSON()
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	if err := c.AddResource(schemaURL, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add tasks schema: %w", err)
	}
	return c.Compile(schemaURL)
})

// ValidateDefinitions checks a tasks document against the exported schema.
// Comments and trailing commas are accepted.
func ValidateDefinitions(data []byte) error {
	std, err := hujson.Standardize(slices.Clone(data))
	if err != nil {
		return fmt.Errorf("parse tasks document: %w", err)
	}
	var doc any
	if err := json.Unmarshal(std, &doc); err != nil {
		return fmt.Errorf("parse tasks document: %w", err)
	}
	return ValidateDocument(doc)
}

// ValidateDocument checks an already decoded document (as produced by
// encoding/json or yaml.v3) against the exported schema.
func ValidateDocument(doc any) error {
	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	return sch.Validate(doc)
}
