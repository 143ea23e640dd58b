package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const DefaultCandidatesKey = "default"

// Candidates maps a config id to its tunable keys and candidate values.
// The "default" entry applies to every config id without its own entry.
type Candidates map[string]map[string][]any

func DefaultCandidates() Candidates {
	return Candidates{
		DefaultCandidatesKey: {
			"bidderTimeout": {1000, 1500, 2000},
		},
	}
}

// LoadCandidates reads a YAML candidates file. An empty path or a missing
// file falls back to DefaultCandidates.
func LoadCandidates(path string) (Candidates, error) {
	if path == "" {
		return DefaultCandidates(), nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultCandidates(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read candidates file: %w", err)
	}

	var c Candidates
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse candidates file %s: %w", path, err)
	}
	if len(c) == 0 {
		return DefaultCandidates(), nil
	}
	return c, nil
}

// For returns the candidate map of configID, falling back to the default entry.
func (c Candidates) For(configID string) (map[string][]any, bool) {
	if m, ok := c[configID]; ok && len(m) > 0 {
		return m, true
	}
	m, ok := c[DefaultCandidatesKey]
	return m, ok && len(m) > 0
}
