package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// envPattern matches ${VAR} and ${VAR:-default} expressions in the raw
// YAML. This is how secrets like API keys stay out of purgarr.yaml.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads the configuration file at path, resolves environment
// variable references, and parses the result into a Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	resolved, err := expandEnv(data)
	if err != nil {
		return nil, fmt.Errorf("config: expanding variables in %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(resolved, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// expandEnv substitutes every ${VAR} and ${VAR:-default} reference.
// Substitution is all-or-nothing: a reference with no environment value
// and no default is collected, and the joined errors name every
// unresolved variable so a bad deploy fails with the full list at once.
func expandEnv(data []byte) ([]byte, error) {
	var unresolved []error

	out := envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		subs := envPattern.FindSubmatch(match)
		name := string(subs[1])

		if value, ok := os.LookupEnv(name); ok {
			return []byte(value)
		}
		if fallback := subs[2]; fallback != nil {
			return fallback
		}

		unresolved = append(unresolved, fmt.Errorf("unresolved variable: %s", name))
		return match
	})

	return out, errors.Join(unresolved...)
}
