package task

import (
	"encoding/json"
)

const draft07 = "http://json-schema.org/draft-07/schema#"

// Schema is the subset of draft-07 JSON Schema needed to describe the tasks
// file format. Nullable types are never emitted: a field is either present
// with its type or omitted.
type Schema struct {
	Schema               string             `json:"$schema,omitempty"`
	Ref                  string             `json:"$ref,omitempty"`
	Title                string             `json:"title,omitempty"`
	Description          string             `json:"description,omitempty"`
	Type                 string             `json:"type,omitempty"`
	Enum                 []string           `json:"enum,omitempty"`
	AllOf                []*Schema          `json:"allOf,omitempty"`
	OneOf                []*Schema          `json:"oneOf,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	AdditionalProperties *Schema            `json:"additionalProperties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	Default              json.RawMessage    `json:"default,omitempty"`
	Definitions          map[string]*Schema `json:"definitions,omitempty"`
}

type property struct {
	name     string
	required bool
	schema   *Schema
}

// definitionProperties is the declarative description of Definition. Keep it
// in the same order as the struct fields.
func definitionProperties() []property {
	return []property{
		{name: "label", required: true, schema: &Schema{
			Description: "Human readable name of the task to display in the UI.",
			Type:        "string",
		}},
		{name: "command", required: true, schema: &Schema{
			Description: "Executable command to spawn.",
			Type:        "string",
		}},
		{name: "args", schema: &Schema{
			Description: "Arguments to the command.",
			Type:        "array",
			Items:       &Schema{Type: "string"},
			Default:     rawDefault([]string{}),
		}},
		{name: "env", schema: &Schema{
			Description: "Env overrides for the command, appended to the terminal's environment. " +
				"Keys starting with " + EnvPrefix + " are overwritten by task variables.",
			Type:                 "object",
			AdditionalProperties: &Schema{Type: "string"},
			Default:              rawDefault(map[string]string{}),
		}},
		{name: "cwd", schema: &Schema{
			Description: "Current working directory to spawn the command into, defaults to the current project root. " +
				"May reference task variables as $NAME or ${NAME}.",
			Type:    "string",
			Default: rawDefault(nil),
		}},
		{name: "use_new_terminal", schema: &Schema{
			Description: "Whether to use a new terminal tab or reuse the existing one to spawn the process.",
			Type:        "boolean",
			Default:     rawDefault(false),
		}},
		{name: "allow_concurrent_runs", schema: &Schema{
			Description: "Whether to allow multiple instances of the same task to be run, or rather wait for the existing ones to finish.",
			Type:        "boolean",
			Default:     rawDefault(false),
		}},
		{name: "reveal", schema: &Schema{
			Description: "What to do with the terminal pane and tab, after the command was started.",
			AllOf:       []*Schema{{Ref: "#/definitions/RevealStrategy"}},
			Default:     rawDefault(RevealAlways),
		}},
	}
}

func revealStrategySchema() *Schema {
	return &Schema{
		Description: "What to do with the terminal pane and tab, after the command was started.",
		OneOf: []*Schema{
			{
				Description: "Always show the terminal pane, add and focus the corresponding task's tab in it.",
				Type:        "string",
				Enum:        []string{string(RevealAlways)},
			},
			{
				Description: "Do not change terminal pane focus, but still add/reuse the task's tab there.",
				Type:        "string",
				Enum:        []string{string(RevealNever)},
			},
		},
	}
}

func definitionSchema() *Schema {
	s := &Schema{
		Description: "Static task definition from the tasks file.",
		Type:        "object",
		Properties:  map[string]*Schema{},
	}
	for _, p := range definitionProperties() {
		s.Properties[p.name] = p.schema
		if p.required {
			s.Required = append(s.Required, p.name)
		}
	}
	return s
}

// DefinitionsSchema describes a tasks file: an array of Definition records.
func DefinitionsSchema() *Schema {
	return &Schema{
		Schema:      draft07,
		Title:       "TaskDefinitions",
		Description: "A group of tasks defined in a tasks file.",
		Type:        "array",
		Items:       &Schema{Ref: "#/definitions/Definition"},
		Definitions: map[string]*Schema{
			"Definition":     definitionSchema(),
			"RevealStrategy": revealStrategySchema(),
		},
	}
}

// SchemaJSON renders DefinitionsSchema as indented JSON.
func SchemaJSON() ([]byte, error) {
	return json.MarshalIndent(DefinitionsSchema(), "", "  ")
}

func rawDefault(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
