package main

import (
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// patternConfig is the shape of a .worktreeignore.yaml sidecar file,
// parsed the same way a small YAML config file is read: unmarshal into a
// struct, then merge over built-in defaults rather than replace them.
type patternConfig struct {
	Exclude []string `yaml:"exclude"`
	Include []string `yaml:"include"`
	Private []string `yaml:"private"`
}

func defaultPatternConfig() patternConfig {
	return patternConfig{
		Exclude: []string{".git", "node_modules", "*.swp"},
	}
}

// loadPatternConfig reads path (if it exists) and merges it over the
// built-in defaults; a missing file is not an error, it just yields the
// defaults untouched.
func loadPatternConfig(path string) (patternConfig, error) {
	cfg := defaultPatternConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	var loaded patternConfig
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return cfg, err
	}

	if err := mergo.Merge(&loaded, cfg, mergo.WithAppendSlice); err != nil {
		return cfg, err
	}
	return loaded, nil
}
