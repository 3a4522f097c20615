package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GateVocabulary overrides the built-in relevance gate terms. Empty lists
// keep the defaults.
type GateVocabulary struct {
	Keywords []string `yaml:"keywords"`
	Phrases  []string `yaml:"phrases"`
}

// LoadGateVocabulary reads a YAML vocabulary file. An empty path returns an
// empty vocabulary.
func LoadGateVocabulary(path string) (GateVocabulary, error) {
	var vocab GateVocabulary
	if path == "" {
		return vocab, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return vocab, fmt.Errorf("read gate vocabulary: %w", err)
	}
	if err := yaml.Unmarshal(raw, &vocab); err != nil {
		return vocab, fmt.Errorf("parse gate vocabulary %s: %w", path, err)
	}
	return vocab, nil
}
