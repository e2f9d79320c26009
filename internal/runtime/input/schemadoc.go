package input

import (
	"errors"
	"fmt"

	"github.com/cafescraper/actorkit/internal/runtime/jsoncodec"
)

// Document is the job template's declared input schema. The platform renders
// the configuration UI from it and partitions work by the property named in
// the "b" field; at runtime the SDK only needs SplitKey and the resulting
// partitioned array, but parsing the document lets tooling validate a
// template before it is deployed.
type Document struct {
	Description string     `json:"description"`
	SplitKey    string     `json:"b"`
	Properties  []Property `json:"properties"`
}

// Property declares one input parameter.
type Property struct {
	Title       string     `json:"title"`
	Name        string     `json:"name"`
	Type        string     `json:"type"`
	Editor      string     `json:"editor"`
	Description string     `json:"description,omitempty"`
	Default     any        `json:"default,omitempty"`
	Required    bool       `json:"required,omitempty"`
	Options     []Option   `json:"options,omitempty"`
	ParamList   []Property `json:"param_list,omitempty"`
}

// Option is one choice of an enumerated property.
type Option struct {
	Label string `json:"label"`
	Value any    `json:"value"`
}

var propertyTypes = map[string]struct{}{
	"string":  {},
	"integer": {},
	"boolean": {},
	"array":   {},
	"object":  {},
}

// ParseDocument decodes and validates an input schema document.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := jsoncodec.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("input schema: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks property names for uniqueness and ASCII cleanliness, types
// against the allowed set, and that the b field names an array-typed
// property.
func (d *Document) Validate() error {
	var errs []error

	seen := make(map[string]struct{}, len(d.Properties))
	for _, p := range d.Properties {
		if p.Name == "" {
			errs = append(errs, errors.New("input schema: property with empty name"))
			continue
		}
		if !isASCII(p.Name) {
			errs = append(errs, fmt.Errorf("input schema: property name %q is not ASCII", p.Name))
		}
		if _, dup := seen[p.Name]; dup {
			errs = append(errs, fmt.Errorf("input schema: duplicate property name %q", p.Name))
		}
		seen[p.Name] = struct{}{}
		if _, ok := propertyTypes[p.Type]; !ok {
			errs = append(errs, fmt.Errorf("input schema: property %q has unknown type %q", p.Name, p.Type))
		}
	}

	if d.SplitKey != "" {
		found := false
		for _, p := range d.Properties {
			if p.Name != d.SplitKey {
				continue
			}
			found = true
			if p.Type != "array" {
				errs = append(errs, fmt.Errorf("input schema: split key %q must be array-typed, is %q", d.SplitKey, p.Type))
			}
		}
		if !found {
			errs = append(errs, fmt.Errorf("input schema: split key %q does not name a property", d.SplitKey))
		}
	}

	return errors.Join(errs...)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			return false
		}
	}
	return true
}
