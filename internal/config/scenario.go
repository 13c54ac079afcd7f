package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/cartoncaps/analytics/internal/errors"
)

// Scenario is a named set of generation overrides read from YAML.
// Only the fields present in the file replace the configured values.
type Scenario struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Generation  ScenarioGeneration `yaml:"generation"`
}

// ScenarioGeneration holds the optional overrides of a scenario
type ScenarioGeneration struct {
	Seed      *uint64    `yaml:"seed"`
	OutputDir *string    `yaml:"output_dir"`
	StartDate *time.Time `yaml:"start_date"`
	EndDate   *time.Time `yaml:"end_date"`
	Schools   *int       `yaml:"schools"`
	Users     *int       `yaml:"users"`
	Products  *int       `yaml:"products"`
	Referrals *int       `yaml:"referrals"`
	Purchases *int       `yaml:"purchases"`
}

// LoadScenario reads a scenario file
func LoadScenario(path string) (*Scenario, error) {
	content, err := os.ReadFile(path) // #nosec G304 - path comes from operator configuration
	if err != nil {
		return nil, apperrors.NewConfigError("failed to read scenario file "+path, err)
	}

	scenario := &Scenario{}
	if err := yaml.Unmarshal(content, scenario); err != nil {
		return nil, apperrors.NewConfigError("failed to parse scenario file "+path, err)
	}
	return scenario, nil
}

// Apply overlays the scenario's overrides onto gen
func (s *Scenario) Apply(gen *GenerationConfig) {
	o := s.Generation
	if o.Seed != nil {
		gen.Seed = *o.Seed
	}
	if o.OutputDir != nil {
		gen.OutputDir = *o.OutputDir
	}
	if o.StartDate != nil {
		gen.StartDate = o.StartDate.UTC()
	}
	if o.EndDate != nil {
		gen.EndDate = o.EndDate.UTC()
	}
	if o.Schools != nil {
		gen.Schools = *o.Schools
	}
	if o.Users != nil {
		gen.Users = *o.Users
	}
	if o.Products != nil {
		gen.Products = *o.Products
	}
	if o.Referrals != nil {
		gen.Referrals = *o.Referrals
	}
	if o.Purchases != nil {
		gen.Purchases = *o.Purchases
	}
}
