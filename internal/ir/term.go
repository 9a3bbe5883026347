package ir

import "fmt"

// Term is the integer code of an entity or construct.
//
// Positive terms name asserted entities (classes, properties, individuals).
// Negative terms name constructs: anonymous compound expressions synthesized
// by the normalizer or loaded from an ontology. Zero is never a valid term.
type Term int64

// IsConstruct reports whether t names a synthesized construct.
func (t Term) IsConstruct() bool { return t < 0 }

// Well-known terms. Their ids are fixed so compiled rule sets can be shared
// across fact stores; user entities are allocated from FirstUserTerm.
const (
	Thing              Term = 1
	Nothing            Term = 2
	Class              Term = 3
	ObjectProperty     Term = 4
	DataProperty       Term = 5
	NamedIndividual    Term = 6
	FunctionalProperty Term = 7
	TransitiveProperty Term = 8
	AllDisjointClasses Term = 9

	Type                 Term = 10
	SubclassOf           Term = 11
	SubpropertyOf        Term = 12
	EquivalentClass      Term = 13
	EquivalentProperty   Term = 14
	EquivalentIndividual Term = 15
	DisjointWith         Term = 16
	Members              Term = 17
	Domain               Term = 18
	Range                Term = 19

	Some       Term = 20
	Only       Term = 21
	Value      Term = 22
	Exactly    Term = 23
	OnProperty Term = 24
	OnClass    Term = 25

	IntersectionOf Term = 30
	UnionOf        Term = 31
	ComplementOf   Term = 32
	InverseOf      Term = 33
	AndOr          Term = 34

	InferDescendants Term = 40
	InferAncestors   Term = 41
	Concrete         Term = 42
)

// FirstUserTerm is the first id handed out to user entities.
const FirstUserTerm Term = 100

// Namespaces used to spell well-known IRIs.
const (
	NSRDF      = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	NSRDFS     = "http://www.w3.org/2000/01/rdf-schema#"
	NSOWL      = "http://www.w3.org/2002/07/owl#"
	NSInternal = "urn:subsume:"
)

// WellKnown describes one fixed term and the short name rule sources use for it.
type WellKnown struct {
	Term  Term
	Short string
	IRI   string
}

// wellKnown lists every fixed term. Short names double as DSL identifiers.
var wellKnown = []WellKnown{
	{Thing, "Thing", NSOWL + "Thing"},
	{Nothing, "Nothing", NSOWL + "Nothing"},
	{Class, "Class", NSOWL + "Class"},
	{ObjectProperty, "ObjectProperty", NSOWL + "ObjectProperty"},
	{DataProperty, "DataProperty", NSOWL + "DatatypeProperty"},
	{NamedIndividual, "NamedIndividual", NSOWL + "NamedIndividual"},
	{FunctionalProperty, "FunctionalProperty", NSOWL + "FunctionalProperty"},
	{TransitiveProperty, "TransitiveProperty", NSOWL + "TransitiveProperty"},
	{AllDisjointClasses, "AllDisjointClasses", NSOWL + "AllDisjointClasses"},
	{Type, "type", NSRDF + "type"},
	{SubclassOf, "subclass_of", NSRDFS + "subClassOf"},
	{SubpropertyOf, "subproperty_of", NSRDFS + "subPropertyOf"},
	{EquivalentClass, "equivalent_class", NSOWL + "equivalentClass"},
	{EquivalentProperty, "equivalent_property", NSOWL + "equivalentProperty"},
	{EquivalentIndividual, "equivalent_individual", NSOWL + "sameAs"},
	{DisjointWith, "disjoint_with", NSOWL + "disjointWith"},
	{Members, "disjoint_member", NSOWL + "members"},
	{Domain, "domain", NSRDFS + "domain"},
	{Range, "range", NSRDFS + "range"},
	{Some, "some", NSOWL + "someValuesFrom"},
	{Only, "only", NSOWL + "allValuesFrom"},
	{Value, "value", NSOWL + "hasValue"},
	{Exactly, "exactly", NSOWL + "qualifiedCardinality"},
	{OnProperty, "on_property", NSOWL + "onProperty"},
	{OnClass, "on_class", NSOWL + "onClass"},
	{IntersectionOf, "intersection_of", NSOWL + "intersectionOf"},
	{UnionOf, "union_of", NSOWL + "unionOf"},
	{ComplementOf, "complement_of", NSOWL + "complementOf"},
	{InverseOf, "inverse_of", NSOWL + "inverseOf"},
	{AndOr, "andor", NSInternal + "andor"},
	{InferDescendants, "infer_descendants", NSInternal + "infer_descendants"},
	{InferAncestors, "infer_ancestors", NSInternal + "infer_ancestors"},
	{Concrete, "concrete", NSInternal + "concrete"},
}

var (
	shortToTerm = map[string]Term{}
	iriToTerm   = map[string]Term{}
	termToInfo  = map[Term]WellKnown{}
)

func init() {
	for _, wk := range wellKnown {
		shortToTerm[wk.Short] = wk.Term
		iriToTerm[wk.IRI] = wk.Term
		termToInfo[wk.Term] = wk
	}
	// "is_a" is the DSL spelling of subclass_of.
	shortToTerm["is_a"] = SubclassOf
}

// WellKnownTerms returns every fixed term in id order.
func WellKnownTerms() []WellKnown {
	out := make([]WellKnown, len(wellKnown))
	copy(out, wellKnown)
	return out
}

// LookupShort resolves a DSL short name ("Thing", "subclass_of", ...).
func LookupShort(name string) (Term, bool) {
	t, ok := shortToTerm[name]
	return t, ok
}

// LookupIRI resolves a full IRI to a well-known term.
func LookupIRI(iri string) (Term, bool) {
	t, ok := iriToTerm[NormalizeName(iri)]
	return t, ok
}

// ShortName returns the DSL name of a well-known term, or its number.
func ShortName(t Term) string {
	if wk, ok := termToInfo[t]; ok {
		return wk.Short
	}
	return fmt.Sprintf("%d", int64(t))
}

// IRIOf returns the IRI of a well-known term.
func IRIOf(t Term) (string, bool) {
	wk, ok := termToInfo[t]
	return wk.IRI, ok
}
