// Package engine runs a compiled rule program to a fixed point.
//
// A run copies the asserted facts of the store into per-run tables, then
// walks the stages of the rule set. Each stage is tailored to the
// predicates present, runs its preprocess rules and builtins once, and
// then repeatedly executes the cheapest pending completion rule until
// none is left. Rules are re-enqueued when a rule they read from writes
// new rows, with the watermarks they were enqueued at, so most
// executions only look at rows added since.
//
// The run ends with the extraction of the derived parents and
// equivalences, or with an InconsistencyError when a RAISE rule matches.
package engine
