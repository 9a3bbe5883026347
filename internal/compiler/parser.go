package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/subsume/internal/ir"
)

// Expressions are the nested form of the right-hand side of a row before
// they are flattened into rows.
type expr interface{ at() token }

type atomExpr struct {
	tok  token
	atom Atom
}

// listExpr is "a op b" (two members), "op a" or "a op" (one member).
type listExpr struct {
	tok     token
	op      ir.ListOp
	members []expr
}

type restrExpr struct {
	tok   token
	table *ir.Table
	prop  expr
	card  expr
	value expr
}

func (e *atomExpr) at() token  { return e.tok }
func (e *listExpr) at() token  { return e.tok }
func (e *restrExpr) at() token { return e.tok }

func isRest(e expr) bool {
	a, ok := e.(*atomExpr)
	return ok && a.atom.IsRest()
}

type parser struct {
	toks []token
	pos  int

	rs    *RuleSet
	stage *Stage
	rule  *Rule
	// gen numbers generated variables; it restarts for every rule.
	gen int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorAt(t token, code, format string, args ...any) *CompileError {
	e := &CompileError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Offset:  t.offset,
		Line:    t.line,
		Col:     t.col,
	}
	if p.rule != nil {
		e.Rule = p.rule.Name
	}
	return e
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, p.errorAt(t, ErrSyntax, "expected %s, found %s", what, t)
	}
	return t, nil
}

func (p *parser) isKeyword(word string) bool {
	t := p.peek()
	return t.kind == tokKeyword && t.text == word
}

// parseFile parses a whole rule source into p.rs.
func (p *parser) parseFile() error {
	for {
		t := p.peek()
		switch {
		case t.kind == tokEOF:
			return nil
		case p.isKeyword("STAGE"):
			p.next()
			name, err := p.expect(tokString, "stage name")
			if err != nil {
				return err
			}
			p.stage = &Stage{Name: name.text}
			p.rs.Stages = append(p.rs.Stages, p.stage)
		case p.isKeyword("BUILTIN"):
			if err := p.parseStandaloneBuiltin(); err != nil {
				return err
			}
		case p.isKeyword("PREPROCESS"), p.isKeyword("COMPLETION"):
			if err := p.parseRule(); err != nil {
				return err
			}
		default:
			return p.errorAt(t, ErrSyntax, "expected STAGE, PREPROCESS, COMPLETION or BUILTIN, found %s", t)
		}
	}
}

func (p *parser) startRule(decl token, kind Kind, name string) (*Rule, error) {
	if p.stage == nil {
		return nil, p.errorAt(decl, ErrNoStage, "rule %q declared before any STAGE", name)
	}
	r := &Rule{
		Name:     name,
		Stage:    p.stage.Name,
		Kind:     kind,
		Priority: DefaultPriority,
		Offset:   decl.offset,
		Line:     decl.line,
	}
	p.rule = r
	p.gen = 0
	return r, nil
}

func (p *parser) addRule(decl token, r *Rule) error {
	if _, dup := p.rs.byName[r.Name]; dup {
		return p.errorAt(decl, ErrDuplicateRule, "duplicate rule name %q", r.Name)
	}
	p.rs.byName[r.Name] = r
	p.rs.order = append(p.rs.order, r)
	if r.Kind == Preprocess {
		p.stage.Preprocess = append(p.stage.Preprocess, r)
	} else {
		p.stage.Completions = append(p.stage.Completions, r)
	}
	p.rule = nil
	return nil
}

// parseStandaloneBuiltin handles `BUILTIN "Type" { args }` outside a rule
// declaration. The step is named after its type and arguments.
func (p *parser) parseStandaloneBuiltin() error {
	decl := p.next()
	typ, err := p.expect(tokString, "builtin type")
	if err != nil {
		return err
	}
	r, err := p.startRule(decl, Preprocess, typ.text)
	if err != nil {
		return err
	}
	if err := p.parseBuiltinBody(r, typ); err != nil {
		return err
	}
	if len(r.Builtin.Ops) > 0 {
		labels := make([]string, len(r.Builtin.Ops))
		for i, op := range r.Builtin.Ops {
			labels[i] = op.String()
		}
		r.Name = fmt.Sprintf("%s(%s)", typ.text, strings.Join(labels, ","))
	}
	return p.addRule(decl, r)
}

func (p *parser) parseBuiltinBody(r *Rule, typ token) error {
	takesOps, ok := builtinArity[typ.text]
	if !ok {
		return p.errorAt(typ, ErrUnknownBuiltin, "unknown builtin %q", typ.text)
	}
	if _, err := p.expect(tokLBrace, "'{'"); err != nil {
		return err
	}
	b := &Builtin{Type: typ.text}
	for p.peek().kind == tokOperator {
		t := p.next()
		op, _ := ir.ParseOperator(t.text)
		b.Ops = append(b.Ops, op)
	}
	if _, err := p.expect(tokRBrace, "operator or '}'"); err != nil {
		return err
	}
	if takesOps && len(b.Ops) == 0 {
		return p.errorAt(typ, ErrBadBuiltinArity, "builtin %s needs at least one list operator", typ.text)
	}
	if !takesOps && len(b.Ops) > 0 {
		return p.errorAt(typ, ErrBadBuiltinArity, "builtin %s takes no arguments", typ.text)
	}
	r.Action = ActionBuiltin
	r.Builtin = b
	r.Complexity = 100
	return nil
}

func (p *parser) parseRule() error {
	decl := p.next()
	kind := Preprocess
	if decl.text == "COMPLETION" {
		kind = Completion
	}
	priority, recursive := DefaultPriority, false
	for p.peek().kind == tokOption {
		opt := p.next()
		if opt.text == "RECURSIVE" {
			recursive = true
		} else {
			priority = options[opt.text]
		}
	}
	name, err := p.expect(tokString, "rule name")
	if err != nil {
		return err
	}
	r, err := p.startRule(decl, kind, name.text)
	if err != nil {
		return err
	}
	r.Priority = priority
	r.Recursive = recursive

	if p.isKeyword("BUILTIN") {
		bt := p.next()
		if kind != Preprocess {
			return p.errorAt(bt, ErrSyntax, "builtins run as PREPROCESS steps")
		}
		typ, err := p.expect(tokString, "builtin type")
		if err != nil {
			return err
		}
		if err := p.parseBuiltinBody(r, typ); err != nil {
			return err
		}
		return p.addRule(decl, r)
	}

	if p.isKeyword("IF") {
		p.next()
		for {
			rows, _, err := p.parseBlock(false)
			if err != nil {
				return err
			}
			r.Conditions = append(r.Conditions, rows)
			if !p.isKeyword("OR") {
				break
			}
			p.next()
		}
	}

	t := p.next()
	switch {
	case t.kind == tokKeyword && (t.text == "INFER" || t.text == "ASSERT"):
		rows, parentOf, err := p.parseBlock(true)
		if err != nil {
			return err
		}
		r.Action = ActionInfer
		r.Conclusions = rows
		for _, row := range rows {
			if n, ok := row.(*NewNodeRow); ok {
				r.NewVars = append(r.NewVars, n.Var)
			}
		}
		attachClausePatterns(r, parentOf)
	case t.kind == tokKeyword && t.text == "RAISE":
		name, err := p.expect(tokString, "error name")
		if err != nil {
			return err
		}
		r.Action = ActionRaise
		r.Raise = name.text
		if len(r.Conditions) == 0 {
			return p.errorAt(t, ErrRaiseNoConditions, "RAISE needs an IF block")
		}
	default:
		return p.errorAt(t, ErrSyntax, "expected INFER, ASSERT or RAISE, found %s", t)
	}

	for i, block := range r.Conditions {
		r.Conditions[i] = markOrdered(block)
	}
	if err := validateRule(r, decl); err != nil {
		return err
	}
	classify(r)
	return p.addRule(decl, r)
}

// block collects the rows of one "{ ... }" block. Nested expressions are
// flattened children first, so a row's inputs always precede it.
type block struct {
	rows []Row
	// parent[i] is the index of the row that consumed row i's construct, or -1.
	parent []int
	// conclusion blocks reject objs writes and is_a rows without level.
	conclusion bool
}

func (b *block) add(r Row) int {
	b.rows = append(b.rows, r)
	b.parent = append(b.parent, -1)
	return len(b.rows) - 1
}

func (p *parser) parseBlock(conclusion bool) ([]Row, []int, error) {
	if _, err := p.expect(tokLBrace, "'{'"); err != nil {
		return nil, nil, err
	}
	b := &block{conclusion: conclusion}
	for p.peek().kind != tokRBrace {
		if p.peek().kind == tokEOF {
			return nil, nil, p.errorAt(p.peek(), ErrSyntax, "unterminated block")
		}
		if err := p.parseRow(b); err != nil {
			return nil, nil, err
		}
	}
	p.next()
	return b.rows, b.parent, nil
}

func (p *parser) parseRow(b *block) error {
	if p.peek().kind == tokNew {
		p.next()
		v, err := p.expect(tokVar, "variable after 'new'")
		if err != nil {
			return err
		}
		b.add(&NewNodeRow{Var: v.text})
		return nil
	}

	subjTok := p.peek()
	subjExpr, err := p.parseOperand()
	if err != nil {
		return err
	}

	t := p.peek()
	switch t.kind {
	case tokFlag:
		p.next()
		s, _, err := p.flatten(b, subjExpr, "")
		if err != nil {
			return err
		}
		tbl := ir.PredicateTable(mustShort(t.text))
		b.add(&FlagRow{Table: tbl, S: s})
		return nil

	case tokOperator:
		p.next()
		op, _ := ir.ParseOperator(t.text)
		memberExpr, err := p.parseOperand()
		if err != nil {
			return err
		}
		return p.addMembership(b, subjExpr, op, memberExpr)

	case tokRestr:
		p.next()
		re := &restrExpr{tok: t, table: ir.PredicateTable(mustShort(t.text))}
		if re.table == ir.TableExactly {
			if re.card, err = p.parseOperand(); err != nil {
				return err
			}
		}
		if re.prop, err = p.parseOperand(); err != nil {
			return err
		}
		if re.value, err = p.parseOperand(); err != nil {
			return err
		}
		name, err := p.definedVar(subjExpr)
		if err != nil {
			return err
		}
		_, _, err = p.flatten(b, re, name)
		return err

	case tokCompare:
		p.next()
		if t.text == "=" {
			rhs, err := p.parseExpr()
			if err != nil {
				return err
			}
			if _, atomic := rhs.(*atomExpr); !atomic {
				name, err := p.definedVar(subjExpr)
				if err != nil {
					return err
				}
				_, _, err = p.flatten(b, rhs, name)
				return err
			}
			return p.addCompare(b, subjExpr, t, rhs)
		}
		rhs, err := p.parseOperand()
		if err != nil {
			return err
		}
		return p.addCompare(b, subjExpr, t, rhs)

	case tokName:
		p.next()
		if t.text == "NOT_is_a" {
			oExpr, err := p.parseOperand()
			if err != nil {
				return err
			}
			s, _, err := p.flatten(b, subjExpr, "")
			if err != nil {
				return err
			}
			o, _, err := p.flatten(b, oExpr, "")
			if err != nil {
				return err
			}
			b.add(&NotIsARow{S: s, O: o})
			return nil
		}
		return p.parseFact(b, subjExpr, t)
	}
	return p.errorAt(subjTok, ErrSyntax, "expected a predicate after %s, found %s", subjTok, t)
}

// definedVar returns the variable a definition row names.
func (p *parser) definedVar(e expr) (string, error) {
	a, ok := e.(*atomExpr)
	if !ok || !a.atom.IsVar() {
		return "", p.errorAt(e.at(), ErrSyntax, "only a variable can be defined as a construct")
	}
	return a.atom.Name, nil
}

func (p *parser) addCompare(b *block, lhs expr, op token, rhs expr) error {
	l, ok1 := lhs.(*atomExpr)
	r, ok2 := rhs.(*atomExpr)
	if !ok1 || !ok2 || l.atom.IsRest() || r.atom.IsRest() {
		return p.errorAt(op, ErrSyntax, "both sides of %q must be variables or literals", op.text)
	}
	b.add(&CompareRow{Left: l.atom, Op: op.text, Right: r.atom})
	return nil
}

func (p *parser) addMembership(b *block, subj expr, op ir.ListOp, member expr) error {
	s, _, err := p.flatten(b, subj, "")
	if err != nil {
		return err
	}
	if isRest(member) {
		b.add(&ClauseListRow{Op: op, S: s})
		return nil
	}
	m, child, err := p.flatten(b, member, "")
	if err != nil {
		return err
	}
	idx := b.add(&FlatListRow{Op: op, S: s, Member: m})
	if child >= 0 {
		b.parent[child] = idx
	}
	return nil
}

// parseFact handles "subject predicate object".
func (p *parser) parseFact(b *block, subjExpr expr, predTok token) error {
	var level *Atom
	var pred ir.Term
	switch {
	case predTok.text == "is_a":
		pred = ir.SubclassOf
	case strings.HasPrefix(predTok.text, "is_a("):
		pred = ir.SubclassOf
		lv, err := parseLevel(predTok.text[len("is_a(") : len(predTok.text)-1])
		if err != nil {
			return p.errorAt(predTok, ErrSyntax, "bad is_a level: %v", err)
		}
		level = &lv
	default:
		t, err := p.resolve(predTok)
		if err != nil {
			return err
		}
		pred = t
	}

	objExpr, err := p.parseExpr()
	if err != nil {
		return err
	}

	if op, ok := ir.ListOpForPredicate(pred); ok {
		return p.addMembership(b, subjExpr, op, objExpr)
	}

	s, sChild, err := p.flatten(b, subjExpr, "")
	if err != nil {
		return err
	}
	o, oChild, err := p.flatten(b, objExpr, "")
	if err != nil {
		return err
	}

	tbl := ir.PredicateTable(pred)
	var args []Atom
	switch {
	case tbl == ir.TableObjs:
		if b.conclusion {
			return p.errorAt(predTok, ErrWritesBase, "conclusions cannot write %s facts", ir.ShortName(pred))
		}
		args = []Atom{s, Const(pred), o}
	case tbl == ir.TableIsA:
		args = []Atom{s, o}
		if level != nil {
			args = append(args, *level)
		} else if b.conclusion {
			return p.errorAt(predTok, ErrMissingLevel, "is_a level is missing in conclusion")
		}
	case len(tbl.Columns) == 2:
		args = []Atom{s, o}
	default:
		return p.errorAt(predTok, ErrSyntax, "%s cannot be used as a fact predicate", predTok.text)
	}
	idx := b.add(&TableRow{Table: tbl, Predicate: pred, Args: args})
	for _, c := range []int{sChild, oChild} {
		if c >= 0 {
			b.parent[c] = idx
		}
	}
	return nil
}

func parseLevel(s string) (Atom, error) {
	i := 0
	for i < len(s) && strings.IndexByte("!<>=", s[i]) >= 0 {
		i++
	}
	n, err := strconv.ParseInt(s[i:], 10, 64)
	if err != nil {
		return Atom{}, err
	}
	a := Int(n)
	if op := s[:i]; op != "" && op != "=" {
		switch op {
		case "!=", "<", ">", "<=", ">=":
			a.Op = op
		default:
			return Atom{}, fmt.Errorf("unknown operator %q", op)
		}
	}
	return a, nil
}

// parseExpr parses a right-hand side:
//
//	expr := op operand | restr [op [restr]]
//	restr := operand [(some|only|value) operand | exactly operand operand operand]
func (p *parser) parseExpr() (expr, error) {
	if t := p.peek(); t.kind == tokOperator {
		p.next()
		op, _ := ir.ParseOperator(t.text)
		m, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return &listExpr{tok: t, op: op, members: []expr{m}}, nil
	}
	left, err := p.parseRestr()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind != tokOperator {
		return left, nil
	}
	p.next()
	op, _ := ir.ParseOperator(t.text)
	if !p.startsOperand() {
		return &listExpr{tok: t, op: op, members: []expr{left}}, nil
	}
	right, err := p.parseRestr()
	if err != nil {
		return nil, err
	}
	if isRest(left) {
		return nil, p.errorAt(t, ErrSyntax, "%s must be the last member of a list", RestVar)
	}
	return &listExpr{tok: t, op: op, members: []expr{left, right}}, nil
}

func (p *parser) parseRestr() (expr, error) {
	prop, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind != tokRestr {
		return prop, nil
	}
	p.next()
	re := &restrExpr{tok: t, table: ir.PredicateTable(mustShort(t.text)), prop: prop}
	if re.table == ir.TableExactly {
		if re.card, err = p.parseOperand(); err != nil {
			return nil, err
		}
	}
	if re.value, err = p.parseOperand(); err != nil {
		return nil, err
	}
	return re, nil
}

func (p *parser) startsOperand() bool {
	switch p.peek().kind {
	case tokLParen, tokVar, tokInt, tokFloat, tokString, tokBool, tokName:
		return true
	}
	return false
}

func (p *parser) parseOperand() (expr, error) {
	t := p.next()
	switch t.kind {
	case tokLParen:
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return e, nil
	case tokVar:
		return &atomExpr{tok: t, atom: Var(t.text)}, nil
	case tokInt:
		n, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, p.errorAt(t, ErrSyntax, "bad integer %q", t.text)
		}
		return &atomExpr{tok: t, atom: Int(n)}, nil
	case tokFloat:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, p.errorAt(t, ErrSyntax, "bad float %q", t.text)
		}
		return &atomExpr{tok: t, atom: Atom{Kind: AtomFloat, Float: f}}, nil
	case tokString:
		return &atomExpr{tok: t, atom: Atom{Kind: AtomString, Str: t.text}}, nil
	case tokBool:
		return &atomExpr{tok: t, atom: Atom{Kind: AtomBool, Bool: t.text == "true" || t.text == "True"}}, nil
	case tokName:
		term, err := p.resolve(t)
		if err != nil {
			return nil, err
		}
		return &atomExpr{tok: t, atom: Const(term)}, nil
	}
	return nil, p.errorAt(t, ErrSyntax, "expected a term, found %s", t)
}

// resolve maps a name token to a well-known term.
func (p *parser) resolve(t token) (ir.Term, error) {
	if strings.HasPrefix(t.text, "<") {
		if term, ok := ir.LookupIRI(strings.Trim(t.text, "<>")); ok {
			return term, nil
		}
		return 0, p.errorAt(t, ErrUnknownName, "unknown IRI %s", t.text)
	}
	if term, ok := ir.LookupShort(t.text); ok {
		return term, nil
	}
	return 0, p.errorAt(t, ErrUnknownName, "unknown name %q", t.text)
}

func mustShort(name string) ir.Term {
	t, ok := ir.LookupShort(name)
	if !ok {
		panic("compiler: no well-known term " + name)
	}
	return t
}

func (p *parser) genVar(kind string) Atom {
	p.gen++
	return Var(fmt.Sprintf("?_%s_%d", kind, p.gen))
}

// flatten appends the rows of a nested expression to b and returns the atom
// standing for it, plus the index of the row that defines it (or -1 for
// plain atoms). name, when set, is the variable a definition row binds.
func (p *parser) flatten(b *block, e expr, name string) (Atom, int, error) {
	switch e := e.(type) {
	case *atomExpr:
		return e.atom, -1, nil

	case *restrExpr:
		var children []int
		sub := func(x expr) (Atom, error) {
			a, c, err := p.flatten(b, x, "")
			if c >= 0 {
				children = append(children, c)
			}
			return a, err
		}
		row := &RestrictionRow{Table: e.table}
		var err error
		if e.card != nil {
			if row.Card, err = sub(e.card); err != nil {
				return Atom{}, -1, err
			}
		}
		if row.Prop, err = sub(e.prop); err != nil {
			return Atom{}, -1, err
		}
		if row.Value, err = sub(e.value); err != nil {
			return Atom{}, -1, err
		}
		if isRest(e.prop) || isRest(e.value) {
			return Atom{}, -1, p.errorAt(e.tok, ErrSyntax, "%s cannot be a restriction operand", RestVar)
		}
		row.S = p.nameOr(name, "restr")
		idx := b.add(row)
		for _, c := range children {
			b.parent[c] = idx
		}
		return row.S, idx, nil

	case *listExpr:
		var (
			atoms    []Atom
			children []int
			rest     bool
		)
		for _, m := range e.members {
			if isRest(m) {
				rest = true
				continue
			}
			a, c, err := p.flatten(b, m, "")
			if err != nil {
				return Atom{}, -1, err
			}
			atoms = append(atoms, a)
			if c >= 0 {
				children = append(children, c)
			}
		}
		var row Row
		var s Atom
		switch {
		case rest:
			s = p.nameOr(name, "clause")
			row = &ClauseListRow{Op: e.op, S: s, Members: atoms}
		case len(atoms) == 2:
			s = p.nameOr(name, "linked")
			row = &LinkedListRow{Op: e.op, S: s, O1: atoms[0], O2: atoms[1]}
		default:
			s = p.nameOr(name, "flat")
			row = &FlatListRow{Op: e.op, S: s, Member: atoms[0]}
		}
		idx := b.add(row)
		for _, c := range children {
			b.parent[c] = idx
		}
		return s, idx, nil
	}
	return Atom{}, -1, fmt.Errorf("compiler: unexpected expression %T", e)
}

func (p *parser) nameOr(name, kind string) Atom {
	if name != "" {
		return Var(name)
	}
	return p.genVar(kind)
}

// markOrdered flags linked pairs whose members are compared with < or >
// in the same block, and drops the consumed comparisons.
func markOrdered(rows []Row) []Row {
	consumed := map[int]bool{}
	for _, row := range rows {
		l, ok := row.(*LinkedListRow)
		if !ok || !l.O1.IsVar() || !l.O2.IsVar() {
			continue
		}
		for j, other := range rows {
			c, ok := other.(*CompareRow)
			if !ok || consumed[j] || (c.Op != "<" && c.Op != ">") {
				continue
			}
			if !c.Left.IsVar() || !c.Right.IsVar() {
				continue
			}
			if (c.Left.Name == l.O1.Name && c.Right.Name == l.O2.Name) ||
				(c.Left.Name == l.O2.Name && c.Right.Name == l.O1.Name) {
				l.Ordered = true
				consumed[j] = true
				break
			}
		}
	}
	if len(consumed) == 0 {
		return rows
	}
	out := make([]Row, 0, len(rows)-len(consumed))
	for i, row := range rows {
		if !consumed[i] {
			out = append(out, row)
		}
	}
	return out
}

// attachClausePatterns finds conclusion rows that use an explicit member
// variable of a condition clause below a conclusion clause. The row directly
// under that clause becomes the clause's pattern, applied to every rest
// member.
func attachClausePatterns(r *Rule, parent []int) {
	clauseVars := map[string]bool{}
	for _, block := range r.Conditions {
		for _, row := range block {
			if c, ok := row.(*ClauseListRow); ok {
				for _, m := range c.Members {
					if m.IsVar() {
						clauseVars[m.Name] = true
					}
				}
			}
		}
	}
	if len(clauseVars) == 0 {
		return
	}
	for i, row := range r.Conclusions {
		if _, ok := row.(*ClauseListRow); ok {
			continue
		}
		for _, a := range row.Atoms() {
			if !a.IsVar() || !clauseVars[a.Name] {
				continue
			}
			child := i
			for anc := parent[i]; anc >= 0; anc = parent[anc] {
				if c, ok := r.Conclusions[anc].(*ClauseListRow); ok {
					c.Pattern = r.Conclusions[child]
					c.PatternVar = a.Name
					break
				}
				child = anc
			}
		}
	}
}
