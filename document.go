package twinsync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// An EntityRecord is a single exported entity: a node of the hierarchy to
// reproduce in the remote service.
type EntityRecord struct {
	// EntityID uniquely identifies the entity within the input set and the
	// remote workspace.
	EntityID string `json:"entity_id"`
	// ParentEntityID references another record in the same input set, an id
	// unknown to the input set (a placeholder is created for it), or nothing at
	// all (the entity attaches under the workspace root).
	ParentEntityID string `json:"parent_entity_id,omitempty"`
	EntityName     string `json:"entity_name,omitempty"`
	// ParentName names the placeholder created when the parent is not part of
	// the input set.
	ParentName    string `json:"parent_name,omitempty"`
	Description   string `json:"description,omitempty"`
	ComponentType string `json:"component_type,omitempty"`
	// Properties are passed through, uninterpreted, to the entity's component.
	Properties map[string]any `json:"properties,omitempty"`
	// TemplateParameters are carried along from the export but not sent to the
	// service.
	TemplateParameters any `json:"template_parameters,omitempty"`
}

// HasParent reports whether the record references a parent entity. A record
// whose parent is the RootEntityID sentinel attaches under the workspace root,
// like a record without parent.
func (r EntityRecord) HasParent() bool {
	return r.ParentEntityID != "" && r.ParentEntityID != RootEntityID
}

// Components returns the component payload of this record when instantiating
// the given component type, or nil when componentTypeID is empty.
func (r EntityRecord) Components(componentTypeID string) map[string]Component {
	if componentTypeID == "" {
		return nil
	}
	props := r.Properties
	if props == nil {
		props = map[string]any{}
	}
	return map[string]Component{
		PropertiesComponent: {
			ComponentTypeID: componentTypeID,
			Properties:      props,
		},
	}
}

func (r EntityRecord) description() string {
	if r.Description != "" {
		return r.Description
	}
	return r.EntityName
}

// A Document is the exported JSON object listing the entities to import.
type Document struct {
	Entities []EntityRecord `json:"entities"`
}

const documentSchemaURL = "https://go-digitaltwin.github.io/twinsync/document.schema.json"

const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["entities"],
  "properties": {
    "entities": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["entity_id"],
        "properties": {
          "entity_id":        {"type": "string", "minLength": 1},
          "parent_entity_id": {"type": ["string", "null"]},
          "entity_name":      {"type": ["string", "null"]},
          "parent_name":      {"type": ["string", "null"]},
          "description":      {"type": ["string", "null"]},
          "component_type":   {"type": ["string", "null"]},
          "properties":       {"type": ["object", "null"]}
        }
      }
    }
  }
}`

var compileDocumentSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(documentSchema)))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(documentSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile(documentSchemaURL)
})

// ParseDocument validates p against the document schema and decodes it.
func ParseDocument(p []byte) (Document, error) {
	schema, err := compileDocumentSchema()
	if err != nil {
		// The schema is a constant of this package, so this is a programming error.
		panic(fmt.Errorf("twinsync: compile document schema: %w", err))
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(p))
	if err != nil {
		return Document{}, fmt.Errorf("decode json: %w", err)
	}
	if err := schema.Validate(inst); err != nil {
		return Document{}, fmt.Errorf("validate document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(p, &doc); err != nil {
		return Document{}, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}
