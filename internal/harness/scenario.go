package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/subsume/internal/ontology"
)

// DefaultBase is the namespace of scenario names when a scenario sets none.
const DefaultBase = "http://example.org/scenario#"

// Scenario is a reasoning test case: an ontology and what a run over it
// must conclude.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Base qualifies the names of the inline ontology, the chain and the
	// expectations. Defaults to DefaultBase.
	Base string `yaml:"base,omitempty"`

	// Rules is a rule file, relative to the scenario file. Empty selects
	// the built-in rules.
	Rules string `yaml:"rules,omitempty"`

	// Files lists ontology documents, relative to the scenario file.
	Files []string `yaml:"files,omitempty"`

	// Ontology is an inline ontology document.
	Ontology *ontology.Document `yaml:"ontology,omitempty"`

	// Chain generates a linear subclass chain.
	Chain *Chain `yaml:"chain,omitempty"`

	Expect Expect `yaml:"expect"`

	// Path is the file the scenario was loaded from, if any.
	Path string `yaml:"-"`
}

// Chain is a generated linear hierarchy: <prefix>0 is a subclass of Thing
// and every <prefix>i of <prefix>i-1.
type Chain struct {
	Prefix string `yaml:"prefix"`
	Length int    `yaml:"length"`
}

// Expect lists what the run must conclude. Names are local names in the
// scenario base or well-known short names such as Nothing.
type Expect struct {
	// Outcome is "consistent" (the default) or "inconsistent".
	Outcome string `yaml:"outcome,omitempty"`

	// Entails lists [sub, super] pairs that must hold after the run.
	Entails [][]string `yaml:"entails,omitempty"`

	// NotEntails lists [sub, super] pairs that must not hold.
	NotEntails [][]string `yaml:"not_entails,omitempty"`

	// Parents gives the exact new parents of some entities. An empty list
	// means the run must find none.
	Parents map[string][]string `yaml:"parents,omitempty"`

	// Equivalents gives the exact equivalents of some entities.
	Equivalents map[string][]string `yaml:"equivalents,omitempty"`

	// Concrete lists entities that must be concrete.
	Concrete []string `yaml:"concrete,omitempty"`
}

// Outcome values.
const (
	OutcomeConsistent   = "consistent"
	OutcomeInconsistent = "inconsistent"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sc.Path = path

	dir := filepath.Dir(path)
	for i, f := range sc.Files {
		if !filepath.IsAbs(f) {
			sc.Files[i] = filepath.Join(dir, f)
		}
	}
	if sc.Rules != "" && !filepath.IsAbs(sc.Rules) {
		sc.Rules = filepath.Join(dir, sc.Rules)
	}
	return sc, nil
}

// ParseScenario decodes and validates a scenario. Relative paths are left
// as they are.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Ontology == nil && s.Chain == nil && len(s.Files) == 0 {
		return fmt.Errorf("one of ontology, chain or files is required")
	}
	if s.Chain != nil {
		if s.Chain.Prefix == "" {
			return fmt.Errorf("chain: prefix is required")
		}
		if s.Chain.Length < 1 {
			return fmt.Errorf("chain: length must be positive")
		}
	}

	switch s.Expect.Outcome {
	case "":
		s.Expect.Outcome = OutcomeConsistent
	case OutcomeConsistent, OutcomeInconsistent:
	default:
		return fmt.Errorf("expect.outcome: unknown outcome %q", s.Expect.Outcome)
	}
	if s.Expect.Outcome == OutcomeInconsistent && s.Expect.checks() > 1 {
		return fmt.Errorf("expect: an inconsistent run has no conclusions to check")
	}
	for i, pair := range s.Expect.Entails {
		if len(pair) != 2 {
			return fmt.Errorf("expect.entails[%d]: want [sub, super], got %v", i, pair)
		}
	}
	for i, pair := range s.Expect.NotEntails {
		if len(pair) != 2 {
			return fmt.Errorf("expect.not_entails[%d]: want [sub, super], got %v", i, pair)
		}
	}
	if s.Base == "" {
		s.Base = DefaultBase
	}
	return nil
}

// checks counts the expectations, the outcome included.
func (e Expect) checks() int {
	return 1 + len(e.Entails) + len(e.NotEntails) + len(e.Parents) + len(e.Equivalents) + len(e.Concrete)
}

// documents returns the inline ontology, the generated chain and the
// files, in that order.
func (s *Scenario) documents() ([]*ontology.Document, error) {
	var docs []*ontology.Document
	if s.Ontology != nil {
		doc := *s.Ontology
		if doc.Base == "" {
			doc.Base = s.Base
		}
		doc.Name = s.Name
		docs = append(docs, &doc)
	}
	if s.Chain != nil {
		docs = append(docs, s.Chain.document(s.Base))
	}
	for _, f := range s.Files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read ontology: %w", err)
		}
		doc, err := ontology.Parse(f, data)
		if err != nil {
			return nil, err
		}
		if doc.Base == "" {
			doc.Base = s.Base
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (c *Chain) document(base string) *ontology.Document {
	doc := &ontology.Document{Base: base, Name: "chain"}
	parent := "Thing"
	for i := range c.Length {
		name := fmt.Sprintf("%s%d", c.Prefix, i)
		doc.Classes = append(doc.Classes, name)
		doc.Axioms = append(doc.Axioms, ontology.Axiom{
			Subject:   ontology.Expr{Name: name},
			Predicate: "subclass_of",
			Object:    ontology.Expr{Name: parent},
		})
		parent = name
	}
	return doc
}
