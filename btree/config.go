package btree

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk YAML shape for Config, letting cmd/cowfs
// point at a config file instead of relying solely on DefaultConfig's
// built-in defaults.
type fileConfig struct {
	Path     string `yaml:"path"`
	Capacity int    `yaml:"capacity"`
}

// LoadConfig reads a YAML config file at path and merges it over
// DefaultConfig's defaults: a zero-valued or absent field in the file
// falls back to the default rather than zeroing it out.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config file")
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return Config{}, errors.Wrap(err, "parse config file")
	}

	config := DefaultConfig(fc.Path)
	if fc.Capacity > 0 {
		config.Capacity = fc.Capacity
	}
	return config, nil
}
