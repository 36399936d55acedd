package build

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/auspex/pkg/parser"
)

// exitCalls are recognized process-terminating primitives. A statement
// consisting of one of these calls is a control transfer with no successor.
var exitCalls = map[string]bool{
	"sys.exit": true,
	"os._exit": true,
	"os.abort": true,
	"exit":     true,
	"quit":     true,
}

type loopCtx struct {
	header   int
	exit     int
	finDepth int // finally stack depth when the loop was entered
	sawBreak bool
}

type exceptCtx struct {
	handlers []int
}

type finallyCtx struct {
	entry        int
	sawReturn    bool
	sawRaise     bool
	breakExits   []int
	continueTops []int
}

// cfgBuilder constructs a CFG for one function body by recursive descent.
// Each structured statement wires its dangling exits into the enclosing
// context through the loop, exception and finally stacks.
type cfgBuilder struct {
	cfg       *CFG
	source    []byte
	loops     []*loopCtx
	excepts   []*exceptCtx
	finallies []*finallyCtx
	inFinally int
}

// BuildCFG constructs the control-flow graph for a function body.
func BuildCFG(name string, body *sitter.Node, source []byte) *CFG {
	cfg := &CFG{FuncName: name}
	entry := cfg.newBlock()
	exit := cfg.newBlock()
	cfg.Entry = entry
	cfg.Exit = exit

	b := &cfgBuilder{cfg: cfg, source: source}
	end := b.processBody(body, entry)
	if !b.terminated(end) {
		cfg.connect(end, exit, EdgeNormal)
	}
	return cfg
}

func (b *cfgBuilder) terminated(id int) bool {
	return b.cfg.Blocks[id].Terminator != TermNone
}

func (b *cfgBuilder) newBlock() int {
	id := b.cfg.newBlock()
	if b.inFinally > 0 {
		b.cfg.Blocks[id].InFinally = true
	}
	return id
}

// processBody walks the statements of a block node, returning the block
// where control continues.
func (b *cfgBuilder) processBody(body *sitter.Node, cur int) int {
	if body == nil {
		return cur
	}
	for _, stmt := range parser.NamedChildren(body) {
		cur = b.processStatement(stmt, cur)
	}
	return cur
}

func (b *cfgBuilder) processStatement(node *sitter.Node, cur int) int {
	switch node.Type() {
	case "if_statement":
		return b.processIf(node, cur)
	case "while_statement":
		return b.processWhile(node, cur)
	case "for_statement":
		return b.processFor(node, cur)
	case "try_statement":
		return b.processTry(node, cur)
	case "with_statement":
		b.addStmt(cur, node, headerEnd(node))
		return b.processBody(node.ChildByFieldName("body"), cur)
	case "match_statement":
		return b.processMatch(node, cur)
	case "return_statement":
		b.addStmt(cur, node, parser.EndLine(node))
		return b.terminate(cur, TermReturn, "unreachable after return")
	case "raise_statement":
		b.addStmt(cur, node, parser.EndLine(node))
		return b.terminate(cur, TermRaise, "unreachable after raise")
	case "break_statement":
		b.addStmt(cur, node, parser.EndLine(node))
		return b.terminate(cur, TermBreak, "unreachable after break")
	case "continue_statement":
		b.addStmt(cur, node, parser.EndLine(node))
		return b.terminate(cur, TermContinue, "unreachable after continue")
	case "expression_statement":
		b.addStmt(cur, node, parser.EndLine(node))
		if b.isExitCall(node) {
			return b.terminate(cur, TermExitCall, "unreachable after process exit")
		}
		return cur
	case "comment":
		return cur
	default:
		// Assignments, imports, nested definitions, pass, global and the
		// rest are straight-line statements.
		b.addStmt(cur, node, parser.EndLine(node))
		return cur
	}
}

func (b *cfgBuilder) addStmt(id int, node *sitter.Node, endLine int) {
	b.cfg.Blocks[id].AddStmt(parser.StartLine(node), endLine, node.Type())
}

// headerEnd returns the end line of a compound statement's header, so the
// block statement covers the introducing line rather than the whole body.
func headerEnd(node *sitter.Node) int {
	return parser.StartLine(node)
}

// terminate marks cur as ended by a control transfer, wires the transfer
// edge, and returns a fresh successor block that the builder expects to be
// unreachable.
func (b *cfgBuilder) terminate(cur int, kind TermKind, reason string) int {
	b.cfg.Blocks[cur].Terminator = kind

	switch kind {
	case TermReturn:
		if fin := b.innermostFinally(); fin != nil {
			fin.sawReturn = true
			b.cfg.connect(cur, fin.entry, EdgeNormal)
		} else {
			b.cfg.connect(cur, b.cfg.Exit, EdgeNormal)
		}
	case TermRaise:
		b.routeRaise(cur)
	case TermBreak:
		if loop := b.innermostLoop(); loop != nil {
			loop.sawBreak = true
			if len(b.finallies) > loop.finDepth {
				fin := b.finallies[len(b.finallies)-1]
				fin.breakExits = append(fin.breakExits, loop.exit)
				b.cfg.connect(cur, fin.entry, EdgeNormal)
			} else {
				b.cfg.connect(cur, loop.exit, EdgeLoopExit)
			}
		}
	case TermContinue:
		if loop := b.innermostLoop(); loop != nil {
			if len(b.finallies) > loop.finDepth {
				fin := b.finallies[len(b.finallies)-1]
				fin.continueTops = append(fin.continueTops, loop.header)
				b.cfg.connect(cur, fin.entry, EdgeNormal)
			} else {
				b.cfg.connect(cur, loop.header, EdgeLoopBack)
			}
		}
	case TermExitCall:
		// No successor at all.
	}

	next := b.newBlock()
	b.cfg.Blocks[next].Reason = reason
	return next
}

// routeRaise connects a raising block to the innermost handlers, or the
// pending finally, or the function exit.
func (b *cfgBuilder) routeRaise(cur int) {
	if len(b.excepts) > 0 {
		for _, h := range b.excepts[len(b.excepts)-1].handlers {
			b.cfg.connect(cur, h, EdgeException)
		}
		return
	}
	if fin := b.innermostFinally(); fin != nil {
		fin.sawRaise = true
		b.cfg.connect(cur, fin.entry, EdgeException)
		return
	}
	b.cfg.connect(cur, b.cfg.Exit, EdgeException)
}

func (b *cfgBuilder) innermostLoop() *loopCtx {
	if len(b.loops) == 0 {
		return nil
	}
	return b.loops[len(b.loops)-1]
}

func (b *cfgBuilder) innermostFinally() *finallyCtx {
	if len(b.finallies) == 0 {
		return nil
	}
	return b.finallies[len(b.finallies)-1]
}

func (b *cfgBuilder) processIf(node *sitter.Node, cur int) int {
	cond := node.ChildByFieldName("condition")
	b.addStmt(cur, node, parser.EndLine(cond))

	merge := b.newBlock()
	condBlock := cur

	val, known := foldBool(cond, b.source)

	// True branch.
	thenBlock := b.newBlock()
	if known && !val {
		b.cfg.Blocks[thenBlock].Reason = "unreachable branch"
	} else {
		b.cfg.connect(condBlock, thenBlock, EdgeCondTrue)
	}
	thenEnd := b.processBody(node.ChildByFieldName("consequence"), thenBlock)
	if !b.terminated(thenEnd) {
		b.cfg.connect(thenEnd, merge, EdgeNormal)
	}

	// Elif chain and else clause share the merge block.
	falseSuppressed := known && val
	hasElse := false
	for i := 0; i < int(node.NamedChildCount()); i++ {
		alt := node.NamedChild(i)
		switch alt.Type() {
		case "elif_clause":
			elifCond := alt.ChildByFieldName("condition")
			elifBlock := b.newBlock()
			if falseSuppressed {
				b.cfg.Blocks[elifBlock].Reason = "unreachable branch"
			} else {
				b.cfg.connect(condBlock, elifBlock, EdgeCondFalse)
			}
			b.cfg.Blocks[elifBlock].AddStmt(parser.StartLine(alt), parser.EndLine(elifCond), "elif_clause")

			eval, eknown := foldBool(elifCond, b.source)
			body := b.newBlock()
			if eknown && !eval {
				b.cfg.Blocks[body].Reason = "unreachable branch"
			} else {
				b.cfg.connect(elifBlock, body, EdgeCondTrue)
			}
			bodyEnd := b.processBody(alt.ChildByFieldName("consequence"), body)
			if !b.terminated(bodyEnd) {
				b.cfg.connect(bodyEnd, merge, EdgeNormal)
			}
			condBlock = elifBlock
			falseSuppressed = eknown && eval
		case "else_clause":
			hasElse = true
			elseBlock := b.newBlock()
			if falseSuppressed {
				b.cfg.Blocks[elseBlock].Reason = "unreachable branch"
			} else {
				b.cfg.connect(condBlock, elseBlock, EdgeCondFalse)
			}
			elseEnd := b.processBody(alt.ChildByFieldName("body"), elseBlock)
			if !b.terminated(elseEnd) {
				b.cfg.connect(elseEnd, merge, EdgeNormal)
			}
		}
	}

	if !hasElse && !falseSuppressed {
		b.cfg.connect(condBlock, merge, EdgeCondFalse)
	}
	return merge
}

func (b *cfgBuilder) processWhile(node *sitter.Node, cur int) int {
	cond := node.ChildByFieldName("condition")

	header := b.newBlock()
	b.cfg.connect(cur, header, EdgeNormal)
	b.cfg.Blocks[header].AddStmt(parser.StartLine(node), parser.EndLine(cond), "while_statement")

	exitBlock := b.newBlock()
	body := b.newBlock()

	val, known := foldBool(cond, b.source)
	infinite := known && val
	switch {
	case infinite:
		b.cfg.connect(header, body, EdgeCondTrue)
	case known && !val:
		b.cfg.Blocks[body].Reason = "unreachable branch"
	default:
		b.cfg.connect(header, body, EdgeCondTrue)
	}

	// The loop-else clause runs only when the condition goes false.
	falseTarget := exitBlock
	var elseClause *sitter.Node
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if alt := node.NamedChild(i); alt.Type() == "else_clause" {
			elseClause = alt
		}
	}
	if elseClause != nil {
		elseBlock := b.newBlock()
		falseTarget = elseBlock
		elseEnd := b.processBody(elseClause.ChildByFieldName("body"), elseBlock)
		if !b.terminated(elseEnd) {
			b.cfg.connect(elseEnd, exitBlock, EdgeNormal)
		}
	}
	if !infinite {
		b.cfg.connect(header, falseTarget, EdgeCondFalse)
	}

	loop := &loopCtx{header: header, exit: exitBlock, finDepth: len(b.finallies)}
	b.loops = append(b.loops, loop)
	bodyEnd := b.processBody(node.ChildByFieldName("body"), body)
	b.loops = b.loops[:len(b.loops)-1]

	if !b.terminated(bodyEnd) {
		b.cfg.connect(bodyEnd, header, EdgeLoopBack)
	}

	// A loop whose only exits would be breaks, with no break present,
	// never lets control past it.
	if infinite && !loop.sawBreak {
		b.cfg.Blocks[exitBlock].Reason = "unreachable after infinite loop"
	}
	return exitBlock
}

func (b *cfgBuilder) processFor(node *sitter.Node, cur int) int {
	header := b.newBlock()
	b.cfg.connect(cur, header, EdgeNormal)
	right := node.ChildByFieldName("right")
	b.cfg.Blocks[header].AddStmt(parser.StartLine(node), parser.EndLine(right), "for_statement")

	exitBlock := b.newBlock()
	body := b.newBlock()
	b.cfg.connect(header, body, EdgeCondTrue)

	falseTarget := exitBlock
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if alt := node.NamedChild(i); alt.Type() == "else_clause" {
			elseBlock := b.newBlock()
			falseTarget = elseBlock
			elseEnd := b.processBody(alt.ChildByFieldName("body"), elseBlock)
			if !b.terminated(elseEnd) {
				b.cfg.connect(elseEnd, exitBlock, EdgeNormal)
			}
		}
	}
	b.cfg.connect(header, falseTarget, EdgeCondFalse)

	b.loops = append(b.loops, &loopCtx{header: header, exit: exitBlock, finDepth: len(b.finallies)})
	bodyEnd := b.processBody(node.ChildByFieldName("body"), body)
	b.loops = b.loops[:len(b.loops)-1]

	if !b.terminated(bodyEnd) {
		b.cfg.connect(bodyEnd, header, EdgeLoopBack)
	}
	return exitBlock
}

func (b *cfgBuilder) processMatch(node *sitter.Node, cur int) int {
	b.addStmt(cur, node, headerEnd(node))
	merge := b.newBlock()

	body := node.ChildByFieldName("body")
	for _, clause := range parser.NamedChildren(body) {
		if clause.Type() != "case_clause" {
			continue
		}
		caseBlock := b.newBlock()
		b.cfg.connect(cur, caseBlock, EdgeCondTrue)
		var caseBody *sitter.Node
		if c := clause.ChildByFieldName("consequence"); c != nil {
			caseBody = c
		} else if n := int(clause.NamedChildCount()); n > 0 {
			caseBody = clause.NamedChild(n - 1)
		}
		caseEnd := b.processBody(caseBody, caseBlock)
		if !b.terminated(caseEnd) {
			b.cfg.connect(caseEnd, merge, EdgeNormal)
		}
	}

	// No case may match.
	b.cfg.connect(cur, merge, EdgeCondFalse)
	return merge
}

func (b *cfgBuilder) processTry(node *sitter.Node, cur int) int {
	var exceptClauses []*sitter.Node
	var elseClause, finallyClause *sitter.Node
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "except_clause", "except_group_clause":
			exceptClauses = append(exceptClauses, child)
		case "else_clause":
			elseClause = child
		case "finally_clause":
			finallyClause = child
		}
	}

	b.addStmt(cur, node, headerEnd(node))
	after := b.newBlock()

	var fin *finallyCtx
	var finallyBlock int
	if finallyClause != nil {
		finallyBlock = b.newBlock()
		b.cfg.Blocks[finallyBlock].InFinally = true
		fin = &finallyCtx{entry: finallyBlock}
	}

	// Handler entry blocks exist before the try body so raises inside it
	// can be wired to them.
	var chain []Handler
	handlerBlocks := make([]int, 0, len(exceptClauses))
	for _, clause := range exceptClauses {
		hb := b.newBlock()
		handlerBlocks = append(handlerBlocks, hb)
		chain = append(chain, Handler{
			Block:     hb,
			ExcTypes:  exceptTypes(clause, b.source),
			StartLine: parser.StartLine(clause),
			EndLine:   parser.EndLine(clause),
		})
	}
	if len(chain) > 0 {
		b.cfg.HandlerChains = append(b.cfg.HandlerChains, chain)
	}

	tryBlock := b.newBlock()
	b.cfg.connect(cur, tryBlock, EdgeNormal)
	for _, hb := range handlerBlocks {
		b.cfg.connect(tryBlock, hb, EdgeException)
	}

	if len(handlerBlocks) > 0 {
		b.excepts = append(b.excepts, &exceptCtx{handlers: handlerBlocks})
	}
	if fin != nil {
		b.finallies = append(b.finallies, fin)
	}

	tryEnd := b.processBody(node.ChildByFieldName("body"), tryBlock)

	if len(handlerBlocks) > 0 {
		b.excepts = b.excepts[:len(b.excepts)-1]
	}

	// Normal completion continues into else, then finally or after.
	normalTarget := after
	if fin != nil {
		normalTarget = finallyBlock
	}
	if elseClause != nil {
		elseBlock := b.newBlock()
		if !b.terminated(tryEnd) {
			b.cfg.connect(tryEnd, elseBlock, EdgeNormal)
		}
		elseEnd := b.processBody(elseClause.ChildByFieldName("body"), elseBlock)
		if !b.terminated(elseEnd) {
			b.cfg.connect(elseEnd, normalTarget, EdgeNormal)
		}
	} else if !b.terminated(tryEnd) {
		b.cfg.connect(tryEnd, normalTarget, EdgeNormal)
	}

	// Handler bodies run outside the try's own exception context.
	for i, clause := range exceptClauses {
		hb := handlerBlocks[i]
		b.cfg.Blocks[hb].AddStmt(parser.StartLine(clause), parser.StartLine(clause), "except_clause")
		var handlerBody *sitter.Node
		for _, c := range parser.NamedChildren(clause) {
			if c.Type() == "block" {
				handlerBody = c
			}
		}
		hEnd := b.processBody(handlerBody, hb)
		if !b.terminated(hEnd) {
			b.cfg.connect(hEnd, normalTarget, EdgeNormal)
		}
	}

	if fin != nil {
		b.finallies = b.finallies[:len(b.finallies)-1]

		b.inFinally++
		finEnd := b.processBody(finallyClause.ChildByFieldName("body"), finallyBlock)
		b.inFinally--

		// A terminator inside the finally overrides every pending
		// transfer from the protected region.
		if !b.terminated(finEnd) {
			b.cfg.connect(finEnd, after, EdgeNormal)
			if fin.sawReturn {
				b.cfg.connect(finEnd, b.cfg.Exit, EdgeNormal)
			}
			if fin.sawRaise {
				b.routeRaise(finEnd)
				// routeRaise sets no terminator; the block still flows on.
				b.cfg.Blocks[finEnd].Terminator = TermNone
			}
			for _, target := range fin.breakExits {
				b.cfg.connect(finEnd, target, EdgeLoopExit)
			}
			for _, target := range fin.continueTops {
				b.cfg.connect(finEnd, target, EdgeLoopBack)
			}
		}
	}

	return after
}

// exceptTypes extracts the caught exception type names from an except
// clause. Empty result means a bare except.
func exceptTypes(clause *sitter.Node, source []byte) []string {
	var typeExpr *sitter.Node
	for _, c := range parser.NamedChildren(clause) {
		if c.Type() == "block" {
			break
		}
		typeExpr = c
		break
	}
	if typeExpr == nil {
		return nil
	}
	switch typeExpr.Type() {
	case "tuple":
		var types []string
		for _, el := range parser.NamedChildren(typeExpr) {
			types = append(types, strings.TrimSpace(parser.GetNodeText(el, source)))
		}
		return types
	default:
		return []string{strings.TrimSpace(parser.GetNodeText(typeExpr, source))}
	}
}

// isExitCall reports whether an expression statement is a bare call to a
// recognized process-terminating primitive.
func (b *cfgBuilder) isExitCall(stmt *sitter.Node) bool {
	if stmt.NamedChildCount() != 1 {
		return false
	}
	call := stmt.NamedChild(0)
	if call.Type() != "call" {
		return false
	}
	fn := call.ChildByFieldName("function")
	return exitCalls[parser.GetNodeText(fn, b.source)]
}

// foldBool evaluates a condition over literal booleans and simple boolean
// algebra. known is false when the value cannot be determined statically.
func foldBool(node *sitter.Node, source []byte) (val, known bool) {
	if node == nil {
		return false, false
	}
	switch node.Type() {
	case "true":
		return true, true
	case "false":
		return false, true
	case "none":
		return false, true
	case "integer":
		n, err := strconv.ParseInt(parser.GetNodeText(node, source), 0, 64)
		if err != nil {
			return false, false
		}
		return n != 0, true
	case "parenthesized_expression":
		if node.NamedChildCount() == 1 {
			return foldBool(node.NamedChild(0), source)
		}
	case "not_operator":
		if node.NamedChildCount() == 1 {
			v, k := foldBool(node.NamedChild(0), source)
			return !v, k
		}
	case "boolean_operator":
		left := node.ChildByFieldName("left")
		right := node.ChildByFieldName("right")
		op := parser.GetNodeText(node.ChildByFieldName("operator"), source)
		lv, lk := foldBool(left, source)
		rv, rk := foldBool(right, source)
		switch op {
		case "and":
			if (lk && !lv) || (rk && !rv) {
				return false, true
			}
			if contradicts(left, right, source) {
				// A and not A can never hold.
				return false, true
			}
			if lk && lv && rk && rv {
				return true, true
			}
		case "or":
			if (lk && lv) || (rk && rv) {
				return true, true
			}
			if contradicts(left, right, source) {
				// A or not A always holds.
				return true, true
			}
			if lk && !lv && rk && !rv {
				return false, true
			}
		}
	}
	return false, false
}

// contradicts reports whether one operand is the negation of the other,
// compared by normalized source text.
func contradicts(left, right *sitter.Node, source []byte) bool {
	l := normalizeExpr(parser.GetNodeText(left, source))
	r := normalizeExpr(parser.GetNodeText(right, source))
	return l == "not("+r+")" || r == "not("+l+")"
}

func normalizeExpr(s string) string {
	s = strings.TrimSpace(s)
	// Detect the negation before squeezing whitespace so the identifier
	// "notx" stays distinct from "not x".
	negated := false
	if rest, ok := strings.CutPrefix(s, "not "); ok {
		negated = true
		s = rest
	} else if rest, ok := strings.CutPrefix(s, "not("); ok {
		negated = true
		s = strings.TrimSuffix(rest, ")")
	}
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\t", "")
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	if negated {
		return "not(" + s + ")"
	}
	return s
}
