package catalog

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/goccy/go-yaml"
)

// File is the on-disk catalog format.
type File struct {
	Regions []RegionSpec `yaml:"regions"`
}

// ParseYAML rejects unknown fields.
func ParseYAML(data []byte) (*File, error) {
	var f File

	err := yaml.UnmarshalWithOptions(data, &f, yaml.Strict())
	if err != nil {
		return nil, err
	}

	return &f, nil
}

// LoadFile builds a memory catalog from the YAML file at path.
func LoadFile(logger *slog.Logger, path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	f, err := ParseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}

	m := NewMemory(logger)

	for _, spec := range f.Regions {
		_, err := m.Add(spec)
		if err != nil {
			return nil, err
		}
	}

	logger.Info("Loaded region catalog", "path", path, "regions", len(f.Regions))

	return m, nil
}
