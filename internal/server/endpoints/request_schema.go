package endpoints

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jackzampolin/picturebook/internal/story"
)

const createNarrativeSchemaURL = "create_narrative.json"

var (
	createNarrativeSchemaOnce sync.Once
	createNarrativeSchema     *jsonschema.Schema
	createNarrativeSchemaErr  error
)

// createNarrativeSchemaJSON describes POST /api/narratives bodies. The
// customization enums come from the story package so the two cannot drift.
func createNarrativeSchemaJSON() ([]byte, error) {
	enum := func(values any) map[string]any {
		return map[string]any{"type": "string", "enum": values}
	}
	return json.Marshal(map[string]any{
		"type":     "object",
		"required": []string{"image_urls"},
		"properties": map[string]any{
			"image_urls": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items":    map[string]any{"type": "string", "minLength": 1},
			},
			"customizations": map[string]any{
				"type":                 []string{"object", "null"},
				"additionalProperties": false,
				"properties": map[string]any{
					"age_group": enum(story.AgeGroups),
					"theme":     enum(story.Themes),
					"length":    enum(story.Lengths),
					"tone":      enum(story.Tones),
				},
			},
		},
	})
}

func compileCreateNarrativeSchema() (*jsonschema.Schema, error) {
	createNarrativeSchemaOnce.Do(func() {
		raw, err := createNarrativeSchemaJSON()
		if err != nil {
			createNarrativeSchemaErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(createNarrativeSchemaURL, bytes.NewReader(raw)); err != nil {
			createNarrativeSchemaErr = fmt.Errorf("failed to load request schema: %w", err)
			return
		}
		createNarrativeSchema, createNarrativeSchemaErr = compiler.Compile(createNarrativeSchemaURL)
	})
	return createNarrativeSchema, createNarrativeSchemaErr
}

// validateCreateNarrative checks a raw request body against the schema.
// A returned error is the caller's fault and maps to 400.
func validateCreateNarrative(body []byte) error {
	schema, err := compileCreateNarrativeSchema()
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("request does not match schema: %w", err)
	}
	return nil
}
