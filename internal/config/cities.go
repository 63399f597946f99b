package config

import (
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
)

// Catalog is the set of cities the pipeline knows how to ingest.
type Catalog struct {
	Cities []venue.City `yaml:"cities" validate:"required,min=1,dive"`
}

// LoadCatalog reads and validates a city catalog YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read city catalog %s", path)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a city catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, eris.Wrap(err, "config: parse city catalog")
	}
	if err := validator.New().Struct(cat); err != nil {
		return nil, eris.Wrap(err, "config: invalid city catalog")
	}

	seen := make(map[string]bool, len(cat.Cities))
	for _, c := range cat.Cities {
		key := strings.ToLower(c.Name)
		if seen[key] {
			return nil, eris.Errorf("config: duplicate city %q in catalog", c.Name)
		}
		seen[key] = true
	}
	return &cat, nil
}

// City looks up a city by name, case-insensitively.
func (c *Catalog) City(name string) (venue.City, error) {
	for _, city := range c.Cities {
		if strings.EqualFold(city.Name, name) {
			return city, nil
		}
	}
	return venue.City{}, eris.Errorf("config: unknown city %q", name)
}
