// Package compiler turns rule-language source into rule descriptors.
//
// A rule source is a sequence of stages. Each stage holds preprocess steps,
// which run once, and completion rules, which run until nothing new is
// derived:
//
//	STAGE "main"
//
//	COMPLETION RECURSIVE "is_a_transitive"
//	IF    { ?x is_a ?y
//	        ?y is_a ?z }
//	INFER { ?x is_a(3) ?z }
//
// Nested expressions such as "(?a and ?b)" are flattened into rows, children
// first, each bound to a generated variable. The compiler records what every
// rule reads (Depends, per OR block) and writes (Creates), which the engine
// uses to prune and schedule rules.
package compiler
