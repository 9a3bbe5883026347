// Package harness runs reasoning scenarios: an ontology plus the
// conclusions a run over it must reach.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: disjoint_conjunction
//	description: "What this scenario validates"
//	base: http://example.org/scenario#   # optional
//	rules: custom.rules                  # optional, relative to the file
//	files: [zoo.yaml]                    # optional, relative to the file
//	ontology:                            # optional inline document
//	  axioms:
//	    - [M, subclass_of, {and: [A1, B1]}]
//	chain: {prefix: C, length: 200}      # optional generated hierarchy
//	expect:
//	  outcome: consistent
//	  entails: [[M, Nothing]]
//	  not_entails: [[A, B]]
//	  parents: {M: [Nothing]}
//	  equivalents: {R: [S]}
//	  concrete: [rex]
//
// # Expectations
//
//   - outcome: consistent (default) or inconsistent
//   - entails / not_entails: subsumptions checked against the full closure
//   - parents / equivalents: the exact extracted result for an entity
//   - concrete: entities that must have an instance
//
// Every scenario runs in its own temporary store with a fixed run id, so
// reports are reproducible and can be compared with golden files.
package harness
