package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/witsync/internal/changeset"
	"github.com/roach88/witsync/internal/engine"
	"github.com/roach88/witsync/internal/store"
)

// Scenario is one commit to run against a freshly seeded sandbox.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Mode is a save mode name; empty means the default.
	Mode string `yaml:"mode,omitempty"`

	// DryRun commits without applying.
	DryRun bool `yaml:"dry_run,omitempty"`

	Seed []store.SeedItem `yaml:"seed,omitempty"`

	// ChangeSet is kept as a node and parsed by the changeset package.
	ChangeSet yaml.Node `yaml:"changeset"`

	Expect     Expectation `yaml:"expect"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Expectation is the outcome Commit must report.
type Expectation struct {
	Created int `yaml:"created"`
	Updated int `yaml:"updated"`

	// Error is a commit error code or a substring of the error message.
	// Empty means the scenario must succeed.
	Error string `yaml:"error,omitempty"`
}

// Assertion checks the call trace or the final sandbox state.
type Assertion struct {
	Type string `yaml:"type"`

	// Method and Count are used by call_count.
	Method string `yaml:"method,omitempty"`
	Count  int    `yaml:"count,omitempty"`

	// Methods is used by call_order.
	Methods []string `yaml:"methods,omitempty"`

	// The rest is used by final_state. Fields is a subset match.
	ID        int            `yaml:"id,omitempty"`
	Fields    map[string]any `yaml:"fields,omitempty"`
	Deleted   *bool          `yaml:"deleted,omitempty"`
	Relations *int           `yaml:"relations,omitempty"`
}

// Assertion types.
const (
	AssertCallCount  = "call_count"
	AssertCallOrder  = "call_order"
	AssertFinalState = "final_state"
)

// SaveMode returns the parsed scenario mode.
func (s *Scenario) SaveMode() (engine.SaveMode, error) {
	return engine.ParseSaveMode(s.Mode)
}

// ParseChangeSet decodes the embedded change set.
func (s *Scenario) ParseChangeSet() (*changeset.ChangeSet, error) {
	if s.ChangeSet.Kind == 0 {
		return nil, fmt.Errorf("changeset is required")
	}
	data, err := yaml.Marshal(&s.ChangeSet)
	if err != nil {
		return nil, fmt.Errorf("encode changeset: %w", err)
	}
	return changeset.Parse(data)
}

// LoadScenario reads and validates a scenario file.
// Unknown keys are rejected so typos do not silently disable checks.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &s, nil
}

// LoadScenarios loads every *.yaml and *.yml file in dir, sorted by name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	slices.Sort(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenarios found in %s", dir)
	}

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := s.SaveMode(); err != nil {
		return err
	}
	for i, item := range s.Seed {
		if item.Type == "" {
			return fmt.Errorf("seed[%d]: type is required", i)
		}
	}
	if _, err := s.ParseChangeSet(); err != nil {
		return err
	}
	if s.Expect.Created < 0 || s.Expect.Updated < 0 {
		return fmt.Errorf("expect: counts must be non-negative")
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertCallCount:
		if a.Method == "" {
			return fmt.Errorf("assertions[%d]: method is required for call_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for call_count", index)
		}
	case AssertCallOrder:
		if len(a.Methods) == 0 {
			return fmt.Errorf("assertions[%d]: methods list is required for call_order", index)
		}
	case AssertFinalState:
		if a.ID <= 0 {
			return fmt.Errorf("assertions[%d]: id is required for final_state", index)
		}
		if len(a.Fields) == 0 && a.Deleted == nil && a.Relations == nil {
			return fmt.Errorf("assertions[%d]: final_state needs fields, deleted or relations", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
