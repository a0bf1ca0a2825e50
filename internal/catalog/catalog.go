package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/t77yq/installer-project/internal/model"
)

// Catalog holds the immutable set of installable software specs. It is loaded
// once at startup and only read afterwards, so no locking is needed.
type Catalog struct {
	logger *zap.Logger
	specs  map[string]*model.SoftwareSpec
	names  []string // sorted, for deterministic matching
}

// Load reads the catalog from a YAML file. Entries are keyed by identifier
// under a top-level "software" map.
func Load(logger *zap.Logger, path string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var specs map[string]*model.SoftwareSpec
	if err := v.UnmarshalKey("software", &specs); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("catalog %s contains no software entries", path)
	}

	c := New(logger, specs)
	logger.Info("Loaded software catalog",
		zap.String("path", path),
		zap.Int("entries", len(c.names)))
	return c, nil
}

// New builds a catalog from an in-memory spec map. Identifiers are lowercased.
func New(logger *zap.Logger, specs map[string]*model.SoftwareSpec) *Catalog {
	c := &Catalog{
		logger: logger.Named("catalog"),
		specs:  make(map[string]*model.SoftwareSpec, len(specs)),
	}
	for name, spec := range specs {
		name = strings.ToLower(name)
		spec.Name = name
		c.specs[name] = spec
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)
	return c
}

// Get returns the spec for an identifier.
func (c *Catalog) Get(name string) (*model.SoftwareSpec, bool) {
	spec, ok := c.specs[strings.ToLower(name)]
	return spec, ok
}

// Names returns all catalog identifiers in sorted order.
func (c *Catalog) Names() []string {
	return c.names
}

// Match returns the identifiers whose name occurs as a case-insensitive
// substring of the given free text, in sorted identifier order.
func (c *Catalog) Match(text string) []string {
	text = strings.ToLower(text)
	var matched []string
	for _, name := range c.names {
		if strings.Contains(text, name) {
			matched = append(matched, name)
		}
	}
	return matched
}
