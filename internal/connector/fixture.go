package connector

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/triangulate/internal/model"
)

// fixtureFile is the on-disk shape of an offline research fixture.
type fixtureFile struct {
	Official      bool                           `yaml:"official"`
	Organisations map[string]fixtureOrganisation `yaml:"organisations"`
}

type fixtureOrganisation struct {
	Official   bool               `yaml:"official"`
	Error      string             `yaml:"error"`
	DelayMS    int                `yaml:"delay_ms"`
	Candidates []fixtureCandidate `yaml:"candidates"`
}

type fixtureCandidate struct {
	Field      string   `yaml:"field"`
	Value      string   `yaml:"value"`
	Confidence int      `yaml:"confidence"`
	Sources    []string `yaml:"sources"`
	Official   bool     `yaml:"official"`
}

// Fixture serves recorded findings from a YAML file. It backs offline runs
// and lets tests script timeouts and failures per organisation.
type Fixture struct {
	name string
	data fixtureFile
}

// LoadFixture reads a fixture file.
func LoadFixture(name, path string) (*Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "connector: read fixture %s", path)
	}
	return ParseFixture(name, raw)
}

// ParseFixture decodes fixture YAML.
func ParseFixture(name string, raw []byte) (*Fixture, error) {
	var f fixtureFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, eris.Wrapf(err, "connector: parse fixture for %s", name)
	}
	for id, org := range f.Organisations {
		for _, c := range org.Candidates {
			if _, ok := model.ParseField(c.Field); !ok {
				return nil, eris.Errorf("connector: fixture %s organisation %s has unknown field %q", name, id, c.Field)
			}
		}
	}
	return &Fixture{name: name, data: f}, nil
}

func (f *Fixture) Name() string { return f.name }

func (f *Fixture) Lookup(ctx context.Context, req Request) (*Finding, error) {
	org, ok := f.data.Organisations[req.OrganisationID]
	if !ok {
		return &Finding{}, nil
	}

	if org.DelayMS > 0 {
		timer := time.NewTimer(time.Duration(org.DelayMS) * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, eris.Wrapf(ctx.Err(), "connector: %s lookup %s", f.name, req.OrganisationID)
		case <-timer.C:
		}
	}
	if org.Error != "" {
		return nil, eris.Errorf("connector: %s lookup %s: %s", f.name, req.OrganisationID, org.Error)
	}

	finding := &Finding{Official: f.data.Official || org.Official}
	for _, c := range org.Candidates {
		field, _ := model.ParseField(c.Field)
		finding.Candidates = append(finding.Candidates, model.FieldCandidate{
			Field:      field,
			Value:      c.Value,
			Origin:     f.name,
			Confidence: c.Confidence,
			SourceURLs: append([]string(nil), c.Sources...),
			Official:   c.Official,
		})
	}
	return finding, nil
}
