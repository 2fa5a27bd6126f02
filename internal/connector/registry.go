package connector

import (
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/triangulate/internal/config"
)

// NullName is the name of the connector used when nothing is enabled.
const NullName = "null"

// Descriptor is the resolved view of one configured connector.
type Descriptor struct {
	Name      string        `json:"name"`
	Kind      string        `json:"kind"`
	TrustRank int           `json:"trust_rank"`
	Enabled   bool          `json:"enabled"`
	Timeout   time.Duration `json:"timeout"`
}

// Resolve returns the enabled connectors in trust order, highest trust
// (lowest rank) first. Equal ranks keep their configured order. When no
// connector is enabled it returns the null connector alone so that a run
// still completes deterministically. Resolve performs no I/O.
func Resolve(cfgs []config.ConnectorConfig) []Descriptor {
	var out []Descriptor
	for _, c := range cfgs {
		if !c.Enabled {
			continue
		}
		out = append(out, Descriptor{
			Name:      c.Name,
			Kind:      c.Kind,
			TrustRank: c.TrustRank,
			Enabled:   true,
			Timeout:   c.Timeout(),
		})
	}
	if len(out) == 0 {
		return []Descriptor{{Name: NullName, Kind: "null", Enabled: true, Timeout: time.Second}}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TrustRank < out[j].TrustRank })
	return out
}

// Link pairs a descriptor with its live connector.
type Link struct {
	Descriptor
	Connector Connector
}

// Chain is the ordered connector chain for a run.
type Chain []Link

// Names returns the connector names in chain order.
func (c Chain) Names() []string {
	names := make([]string, len(c))
	for i, l := range c {
		names[i] = l.Name
	}
	return names
}

// Factory builds a connector of one kind from its configuration.
type Factory func(cfg config.ConnectorConfig) (Connector, error)

// Registry maps connector kinds to factories. It is built once per
// process and passed to whoever assembles a run.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry with the built-in kinds registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("null", func(cfg config.ConnectorConfig) (Connector, error) {
		return NewNull(cfg.Name), nil
	})
	r.Register("fixture", func(cfg config.ConnectorConfig) (Connector, error) {
		return LoadFixture(cfg.Name, cfg.FixturePath)
	})
	r.Register("http", func(cfg config.ConnectorConfig) (Connector, error) {
		return NewHTTP(cfg)
	})
	return r
}

// Register adds or replaces the factory for kind.
func (r *Registry) Register(kind string, f Factory) {
	r.factories[kind] = f
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build resolves cfgs and instantiates each connector in trust order.
// An unknown kind or a factory error is a configuration error.
func (r *Registry) Build(cfgs []config.ConnectorConfig) (Chain, error) {
	byName := make(map[string]config.ConnectorConfig, len(cfgs))
	for _, c := range cfgs {
		byName[c.Name] = c
	}

	descs := Resolve(cfgs)
	chain := make(Chain, 0, len(descs))
	for _, d := range descs {
		cfg, ok := byName[d.Name]
		if !ok {
			cfg = config.ConnectorConfig{Name: d.Name, Kind: d.Kind}
		}
		f, ok := r.factories[d.Kind]
		if !ok {
			return nil, eris.Wrapf(config.ErrConfiguration, "connector: %s has unknown kind %q (known: %s)", d.Name, d.Kind, strings.Join(r.Kinds(), ", "))
		}
		c, err := f(cfg)
		if err != nil {
			return nil, eris.Wrapf(config.ErrConfiguration, "connector: build %s: %v", d.Name, err)
		}
		chain = append(chain, Link{Descriptor: d, Connector: c})
	}
	return chain, nil
}
