// Package scenario describes a network and a sequence of variant operations in
// YAML, and replays them against a network.Network with a change log
// attached.
//
// A scenario file looks like:
//
//	network: grid
//	buses:
//	  - id: B1
//	    nominal_v: 400
//	loads:
//	  - id: L1
//	    bus: B1
//	    p0: 80
//	steps:
//	  - clone: {source: InitialState, targets: [V1]}
//	  - use: V1
//	  - set: {id: L1, attribute: p0, value: 90}
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/adalundhe/gridvar/core/config"
	"github.com/adalundhe/gridvar/core/network"
)

var ErrInvalidScenario = errors.New("invalid scenario")

type Scenario struct {
	Network string `yaml:"network"`

	// Config is overlaid on the configuration the runner was built with.
	Config *config.Config `yaml:"config"`

	Buses        []network.BusSpec         `yaml:"buses"`
	Generators   []network.GeneratorSpec   `yaml:"generators"`
	Loads        []network.LoadSpec        `yaml:"loads"`
	Shunts       []network.ShuntSpec       `yaml:"shunts"`
	Lines        []network.LineSpec        `yaml:"lines"`
	Transformers []network.TransformerSpec `yaml:"transformers"`

	Steps  []Step `yaml:"steps"`
	Report Report `yaml:"report"`
}

// Step holds exactly one action.
type Step struct {
	Clone         *CloneStep     `yaml:"clone,omitempty"`
	Overwrite     *OverwriteStep `yaml:"overwrite,omitempty"`
	Use           string         `yaml:"use,omitempty"`
	Set           *SetStep       `yaml:"set,omitempty"`
	RemoveVariant string         `yaml:"remove_variant,omitempty"`
	Remove        string         `yaml:"remove,omitempty"`
	Parallel      *ParallelStep  `yaml:"parallel,omitempty"`
}

type CloneStep struct {
	Source  string   `yaml:"source"`
	Targets []string `yaml:"targets"`
}

type OverwriteStep struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

// SetStep writes one named attribute in the working variant.
type SetStep struct {
	ID        string `yaml:"id"`
	Attribute string `yaml:"attribute"`
	Value     any    `yaml:"value"`
}

// ParallelStep applies the same sets to several variants at once, one worker
// per variant.
type ParallelStep struct {
	Variants []string  `yaml:"variants"`
	Set      []SetStep `yaml:"set"`
}

// Report selects what ends up in a Result. Empty fields select everything:
// every live variant, every entity, every attribute.
type Report struct {
	Variants   []string            `yaml:"variants"`
	Attributes map[string][]string `yaml:"attributes"`
}

const (
	actionClone         = "clone"
	actionOverwrite     = "overwrite"
	actionUse           = "use"
	actionSet           = "set"
	actionRemoveVariant = "remove_variant"
	actionRemove        = "remove"
	actionParallel      = "parallel"
)

// Action names the action held by s, or "" when s holds none or several.
func (s Step) Action() string {
	var actions []string
	if s.Clone != nil {
		actions = append(actions, actionClone)
	}
	if s.Overwrite != nil {
		actions = append(actions, actionOverwrite)
	}
	if s.Use != "" {
		actions = append(actions, actionUse)
	}
	if s.Set != nil {
		actions = append(actions, actionSet)
	}
	if s.RemoveVariant != "" {
		actions = append(actions, actionRemoveVariant)
	}
	if s.Remove != "" {
		actions = append(actions, actionRemove)
	}
	if s.Parallel != nil {
		actions = append(actions, actionParallel)
	}
	if len(actions) != 1 {
		return ""
	}
	return actions[0]
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a scenario. Unknown keys are rejected.
func Parse(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w: %w", ErrInvalidScenario, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the shape of the scenario. Whether the steps succeed is
// only known when they run.
func (s *Scenario) Validate() error {
	if s.Network == "" {
		return fmt.Errorf("network id is empty: %w", ErrInvalidScenario)
	}
	for i, step := range s.Steps {
		if err := step.validate(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

func (s Step) validate() error {
	switch s.Action() {
	case "":
		return fmt.Errorf("a step needs exactly one action: %w", ErrInvalidScenario)
	case actionClone:
		if s.Clone.Source == "" || len(s.Clone.Targets) == 0 {
			return fmt.Errorf("clone needs a source and targets: %w", ErrInvalidScenario)
		}
	case actionOverwrite:
		if s.Overwrite.Source == "" || s.Overwrite.Target == "" {
			return fmt.Errorf("overwrite needs a source and a target: %w", ErrInvalidScenario)
		}
	case actionSet:
		return s.Set.validate()
	case actionParallel:
		if len(s.Parallel.Variants) == 0 || len(s.Parallel.Set) == 0 {
			return fmt.Errorf("parallel needs variants and sets: %w", ErrInvalidScenario)
		}
		seen := make(map[string]bool, len(s.Parallel.Variants))
		for _, id := range s.Parallel.Variants {
			if seen[id] {
				return fmt.Errorf("parallel lists variant %q twice: %w", id, ErrInvalidScenario)
			}
			seen[id] = true
		}
		for _, set := range s.Parallel.Set {
			if err := set.validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s SetStep) validate() error {
	if s.ID == "" || s.Attribute == "" {
		return fmt.Errorf("set needs an id and an attribute: %w", ErrInvalidScenario)
	}
	if s.Value == nil {
		return fmt.Errorf("set %s.%s has no value: %w", s.ID, s.Attribute, ErrInvalidScenario)
	}
	return nil
}
