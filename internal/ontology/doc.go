// Package ontology reads ontology documents written in YAML or CUE and
// asserts them as triples into a fact store.
package ontology
