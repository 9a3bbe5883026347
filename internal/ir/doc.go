// Package ir defines the terms and fact-table schema shared by every other
// package.
//
// ir imports nothing internal. Terms are plain integers: positive for
// asserted entities, negative for constructs. The fixed schema (is_a, some,
// flat_lists_and, ...) lives here so the compiler, planner, store and engine
// agree on table and column names without importing each other.
package ir
