package catalog

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Options controls how the runtime catalog is assembled.
type Options struct {
	// File optionally points at a YAML document with a top-level "sources"
	// list. Entries replace built-in sources with the same id or add new ones.
	File string
	// Enabled, when non-empty, restricts the catalog to these ids.
	Enabled []string
	// APIKeys maps source ids to credentials substituted into URLs.
	APIKeys map[string]string
}

// Build assembles the registry from built-in defaults plus overrides.
func Build(opts Options) (*Registry, error) {
	sources := Defaults()

	if opts.File != "" {
		extra, err := LoadFile(opts.File)
		if err != nil {
			return nil, err
		}
		sources = append(sources, extra...)
	}

	if len(opts.Enabled) > 0 {
		want := make(map[string]bool, len(opts.Enabled))
		for _, id := range opts.Enabled {
			want[strings.ToLower(strings.TrimSpace(id))] = true
		}
		for i := range sources {
			sources[i].Enabled = want[strings.ToLower(sources[i].ID)]
		}
	}

	for i := range sources {
		if key, ok := opts.APIKeys[strings.ToLower(sources[i].ID)]; ok {
			sources[i].APIKey = key
		}
	}

	return NewRegistry(sources...)
}

// LoadFile reads source definitions from a YAML file.
func LoadFile(path string) ([]SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}
	return Parse(data)
}

// Parse decodes source definitions from YAML.
func Parse(data []byte) ([]SourceConfig, error) {
	var wrapper struct {
		Sources []SourceConfig `yaml:"sources"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "catalog: parse yaml")
	}
	return wrapper.Sources, nil
}
