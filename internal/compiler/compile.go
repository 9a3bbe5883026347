package compiler

import (
	"github.com/roach88/subsume/internal/ir"
)

// Compile parses rule source into an immutable RuleSet.
//
// Compilation stops at the first error, which is always a *CompileError
// carrying the source offset.
func Compile(src []byte) (*RuleSet, error) {
	toks, err := newLexer(string(src)).tokens()
	if err != nil {
		return nil, err
	}
	p := &parser{
		toks: toks,
		rs:   &RuleSet{byName: map[string]*Rule{}, Hash: ir.RuleSetHash(src)},
	}
	if err := p.parseFile(); err != nil {
		return nil, err
	}
	return p.rs, nil
}

// MustCompile is like Compile but panics on error. It is meant for rule
// sources embedded in the binary.
func MustCompile(src []byte) *RuleSet {
	rs, err := Compile(src)
	if err != nil {
		panic("compiler: " + err.Error())
	}
	return rs
}
