package ontology

import (
	"fmt"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Document is one ontology file.
//
//	base: http://example.org/zoo#
//	classes: [Animal, Dog, Cat]
//	object_properties: [has_part]
//	individuals: [rex]
//	axioms:
//	  - [Dog, subclass_of, Animal]
//	  - [Dog, disjoint_with, Cat]
//	  - [Biped, equivalent_class, {exactly: [2, has_part, Leg]}]
//	  - [rex, type, {and: [Dog, {some: [has_part, Tail]}]}]
//	disjoint:
//	  - [Fish, Bird, Mammal]
//
// Names without a scheme are qualified with base. Entities used but not
// declared get the kind their position implies.
type Document struct {
	Base             string     `yaml:"base"`
	Classes          []string   `yaml:"classes"`
	ObjectProperties []string   `yaml:"object_properties"`
	DataProperties   []string   `yaml:"data_properties"`
	Individuals      []string   `yaml:"individuals"`
	Axioms           []Axiom    `yaml:"axioms"`
	Disjoint         [][]string `yaml:"disjoint"`

	// Name is the file the document was read from.
	Name string `yaml:"-"`
}

// Axiom is a subject, predicate, object statement written as a
// three-element sequence.
type Axiom struct {
	Subject   Expr
	Predicate string
	Object    Expr
	Line      int
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Axiom) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode || len(node.Content) != 3 {
		return nodeError(node, "axiom must be a [subject, predicate, object] sequence")
	}
	if err := node.Content[0].Decode(&a.Subject); err != nil {
		return err
	}
	pred := node.Content[1]
	if pred.Kind != yaml.ScalarNode || pred.Value == "" {
		return nodeError(pred, "predicate must be a name")
	}
	a.Predicate = pred.Value
	if err := node.Content[2].Decode(&a.Object); err != nil {
		return err
	}
	a.Line = node.Line
	return nil
}

// Expr is a class, property or individual expression: a name, or a
// single-key mapping building a construct.
type Expr struct {
	// Name is set for plain names.
	Name string
	// Op is and, or, not, inverse, some, only, value or exactly.
	Op   string
	Args []Expr
	// Card is the cardinality of exactly.
	Card int64
	Line int
}

// IsName reports whether e is a plain name.
func (e Expr) IsName() bool { return e.Op == "" }

// String renders e back in document syntax.
func (e Expr) String() string {
	if e.IsName() {
		return e.Name
	}
	s := "{" + e.Op + ": ["
	if e.Op == "exactly" {
		s += strconv.FormatInt(e.Card, 10) + ", "
	}
	for i, a := range e.Args {
		if i > 0 {
			s += ", "
		}
		s += a.String()
	}
	return s + "]}"
}

// arity is the number of operand expressions per operator; -1 is n-ary.
var arity = map[string]int{
	"and": -1, "or": -1, "not": 1, "inverse": 1,
	"some": 2, "only": 2, "value": 2, "exactly": 2,
}

// Operators returns the construct operators, sorted.
func Operators() []string {
	out := make([]string, 0, len(arity))
	for op := range arity {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (e *Expr) UnmarshalYAML(node *yaml.Node) error {
	e.Line = node.Line
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value == "" {
			return nodeError(node, "empty name")
		}
		e.Name = node.Value
		return nil
	case yaml.MappingNode:
	default:
		return nodeError(node, "expression must be a name or a single-key mapping")
	}
	if len(node.Content) != 2 {
		return nodeError(node, "construct must have exactly one operator")
	}
	e.Op = node.Content[0].Value
	n, ok := arity[e.Op]
	if !ok {
		return nodeError(node.Content[0], "unknown operator %q", e.Op)
	}

	body := node.Content[1]
	operands := []*yaml.Node{body}
	if body.Kind == yaml.SequenceNode {
		operands = body.Content
	}
	if e.Op == "exactly" {
		if len(operands) < 3 {
			return nodeError(body, "exactly takes [cardinality, property, class]")
		}
		card, err := strconv.ParseInt(operands[0].Value, 10, 64)
		if err != nil || card < 0 {
			return nodeError(operands[0], "cardinality must be a non-negative integer")
		}
		e.Card = card
		operands = operands[1:]
	}
	if n >= 0 && len(operands) != n {
		return nodeError(body, "%s takes %d operands, got %d", e.Op, n, len(operands))
	}
	if n < 0 && len(operands) == 0 {
		return nodeError(body, "%s needs at least one operand", e.Op)
	}
	e.Args = make([]Expr, len(operands))
	for i, o := range operands {
		if err := o.Decode(&e.Args[i]); err != nil {
			return err
		}
	}
	if e.Op == "inverse" || e.Op == "some" || e.Op == "only" || e.Op == "value" || e.Op == "exactly" {
		if !e.Args[0].IsName() && e.Args[0].Op != "inverse" {
			return nodeError(body, "%s needs a property first", e.Op)
		}
	}
	return nil
}

func nodeError(node *yaml.Node, format string, args ...any) error {
	return &LoadError{
		Code:    ErrCodeSchema,
		Line:    node.Line,
		Column:  node.Column,
		Message: fmt.Sprintf(format, args...),
	}
}
