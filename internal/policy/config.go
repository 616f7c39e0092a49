package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk policy configuration: one policy per credential id.
type File struct {
	Credentials map[string]Policy `yaml:"credentials"`
}

// Load parses a policy file and validates every policy in it.
func Load(data []byte) (*File, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	for id, p := range file.Credentials {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("credential %q: %w", id, err)
		}
	}
	return &file, nil
}

// LoadPath reads and parses a policy file from disk.
func LoadPath(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return Load(data)
}

// Marshal serializes a policy to YAML, the form stored in the credential
// record.
func Marshal(p Policy) ([]byte, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize policy: %w", err)
	}
	return data, nil
}

// Unmarshal deserializes a stored policy and validates it.
func Unmarshal(data []byte) (Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("failed to parse stored policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}
