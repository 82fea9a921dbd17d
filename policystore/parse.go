package policystore

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseDocument parses raw YAML bytes into a Document.
func ParseDocument(raw []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("policystore: parse document: %w", err)
	}
	if doc.Version == "" {
		return nil, fmt.Errorf("policystore: document missing required version field")
	}
	return &doc, nil
}
