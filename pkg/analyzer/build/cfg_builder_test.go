package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fnCFG(t *testing.T, src, name string) *CFG {
	t.Helper()
	p := analyze(t, map[string]string{"m.py": src})
	for _, fn := range p.AllFunctions() {
		if fn.QualifiedName() == name {
			require.NotNil(t, fn.CFG)
			return fn.CFG
		}
	}
	t.Fatalf("function %q not found", name)
	return nil
}

func successors(c *CFG, from int, kind EdgeKind) []int {
	var out []int
	for _, e := range c.Block(from).Succs {
		if e.Kind == kind {
			out = append(out, e.To)
		}
	}
	return out
}

func hasEdge(c *CFG, from, to int, kind EdgeKind) bool {
	for _, e := range c.Block(from).Succs {
		if e.To == to && e.Kind == kind {
			return true
		}
	}
	return false
}

func blockWithReason(c *CFG, reason string) *Block {
	for _, b := range c.Blocks {
		if b.Reason == reason {
			return b
		}
	}
	return nil
}

func blockWithTerminator(c *CFG, kind TermKind) *Block {
	for _, b := range c.Blocks {
		if b.Terminator == kind {
			return b
		}
	}
	return nil
}

func TestLinearBodySingleBlock(t *testing.T) {
	cfg := fnCFG(t, `
def f(x):
    y = x + 1
    z = y * 2
    print(z)
`, "f")

	entry := cfg.Block(cfg.Entry)
	assert.Len(t, entry.Stmts, 3)
	assert.True(t, hasEdge(cfg, cfg.Entry, cfg.Exit, EdgeNormal))
}

func TestIfElseWiring(t *testing.T) {
	cfg := fnCFG(t, `
def f(x):
    if x:
        a()
    else:
        b()
    c()
`, "f")

	trues := successors(cfg, cfg.Entry, EdgeCondTrue)
	falses := successors(cfg, cfg.Entry, EdgeCondFalse)
	require.Len(t, trues, 1)
	require.Len(t, falses, 1)
	assert.NotEqual(t, trues[0], falses[0])

	// Both branches rejoin at a merge block that flows to exit.
	mergeFromThen := successors(cfg, trues[0], EdgeNormal)
	mergeFromElse := successors(cfg, falses[0], EdgeNormal)
	require.Len(t, mergeFromThen, 1)
	assert.Equal(t, mergeFromThen, mergeFromElse)
	assert.True(t, hasEdge(cfg, mergeFromThen[0], cfg.Exit, EdgeNormal))
}

func TestIfWithoutElseFallsThrough(t *testing.T) {
	cfg := fnCFG(t, `
def f(x):
    if x:
        a()
    b()
`, "f")

	trues := successors(cfg, cfg.Entry, EdgeCondTrue)
	falses := successors(cfg, cfg.Entry, EdgeCondFalse)
	require.Len(t, trues, 1)
	require.Len(t, falses, 1)
	// The false edge skips straight to the merge the branch rejoins.
	assert.True(t, hasEdge(cfg, trues[0], falses[0], EdgeNormal))
}

func TestWhileLoopEdges(t *testing.T) {
	cfg := fnCFG(t, `
def f(n):
    while n > 0:
        n -= 1
    return n
`, "f")

	headers := successors(cfg, cfg.Entry, EdgeNormal)
	require.Len(t, headers, 1)
	header := headers[0]

	bodies := successors(cfg, header, EdgeCondTrue)
	exits := successors(cfg, header, EdgeCondFalse)
	require.Len(t, bodies, 1)
	require.Len(t, exits, 1)
	assert.True(t, hasEdge(cfg, bodies[0], header, EdgeLoopBack))
}

func TestInfiniteLoopMarksCodeAfter(t *testing.T) {
	cfg := fnCFG(t, `
def serve():
    while True:
        handle()
`, "serve")

	dead := blockWithReason(cfg, "unreachable after infinite loop")
	require.NotNil(t, dead)

	headers := successors(cfg, cfg.Entry, EdgeNormal)
	require.Len(t, headers, 1)
	assert.Empty(t, successors(cfg, headers[0], EdgeCondFalse))
}

func TestBreakRestoresLoopExit(t *testing.T) {
	cfg := fnCFG(t, `
def serve():
    while True:
        if done():
            break
        handle()
    return 0
`, "serve")

	assert.Nil(t, blockWithReason(cfg, "unreachable after infinite loop"))

	brk := blockWithTerminator(cfg, TermBreak)
	require.NotNil(t, brk)
	assert.Len(t, successors(cfg, brk.ID, EdgeLoopExit), 1)
}

func TestReturnTerminatesBlock(t *testing.T) {
	cfg := fnCFG(t, `
def f():
    return 1
    print("never")
`, "f")

	entry := cfg.Block(cfg.Entry)
	assert.Equal(t, TermReturn, entry.Terminator)
	assert.True(t, hasEdge(cfg, cfg.Entry, cfg.Exit, EdgeNormal))

	dead := blockWithReason(cfg, "unreachable after return")
	require.NotNil(t, dead)
	start, _, ok := dead.Span()
	require.True(t, ok)
	assert.Equal(t, 4, start)
}

func TestReturnInTryRoutesThroughFinally(t *testing.T) {
	cfg := fnCFG(t, `
def f():
    try:
        return compute()
    finally:
        cleanup()
`, "f")

	ret := blockWithTerminator(cfg, TermReturn)
	require.NotNil(t, ret)

	var fin *Block
	for _, to := range successors(cfg, ret.ID, EdgeNormal) {
		if cfg.Block(to).InFinally {
			fin = cfg.Block(to)
		}
	}
	require.NotNil(t, fin, "return transfers into the finally clause")
	assert.NotEmpty(t, fin.Stmts)
	assert.True(t, hasEdge(cfg, fin.ID, cfg.Exit, EdgeNormal),
		"finally completes the pending return")
}

func TestHandlerChainRecorded(t *testing.T) {
	cfg := fnCFG(t, `
def f():
    try:
        risky()
    except ValueError:
        pass
    except (TypeError, KeyError):
        pass
    except:
        pass
`, "f")

	require.Len(t, cfg.HandlerChains, 1)
	chain := cfg.HandlerChains[0]
	require.Len(t, chain, 3)
	assert.Equal(t, []string{"ValueError"}, chain[0].ExcTypes)
	assert.Equal(t, []string{"TypeError", "KeyError"}, chain[1].ExcTypes)
	assert.Empty(t, chain[2].ExcTypes, "bare except catches everything")
}

func TestRaiseRoutesToHandlers(t *testing.T) {
	cfg := fnCFG(t, `
def f():
    try:
        raise ValueError("bad")
    except ValueError:
        handle()
`, "f")

	raised := blockWithTerminator(cfg, TermRaise)
	require.NotNil(t, raised)
	require.Len(t, cfg.HandlerChains, 1)
	handler := cfg.HandlerChains[0][0].Block
	assert.True(t, hasEdge(cfg, raised.ID, handler, EdgeException))
}

func TestProcessExitHasNoSuccessors(t *testing.T) {
	cfg := fnCFG(t, `
def f():
    sys.exit(1)
    print("never")
`, "f")

	entry := cfg.Block(cfg.Entry)
	assert.Equal(t, TermExitCall, entry.Terminator)
	assert.Empty(t, entry.Succs)
	assert.NotNil(t, blockWithReason(cfg, "unreachable after process exit"))
}

func TestStaticallyFalseBranch(t *testing.T) {
	cfg := fnCFG(t, `
def f():
    if False:
        print("never")
    return 0
`, "f")

	dead := blockWithReason(cfg, "unreachable branch")
	require.NotNil(t, dead)
	assert.Empty(t, successors(cfg, cfg.Entry, EdgeCondTrue))
	require.Len(t, successors(cfg, cfg.Entry, EdgeCondFalse), 1)
}

func TestWhileElseClause(t *testing.T) {
	cfg := fnCFG(t, `
def f(xs):
    while xs:
        xs.pop()
    else:
        done()
    return 1
`, "f")

	headers := successors(cfg, cfg.Entry, EdgeNormal)
	require.Len(t, headers, 1)
	elses := successors(cfg, headers[0], EdgeCondFalse)
	require.Len(t, elses, 1)
	assert.NotEmpty(t, cfg.Block(elses[0]).Stmts, "false edge lands on the else body")
}

func TestMatchStatementFanOut(t *testing.T) {
	cfg := fnCFG(t, `
def f(x):
    match x:
        case 1:
            return "one"
        case 2:
            return "two"
    return "other"
`, "f")

	assert.Len(t, successors(cfg, cfg.Entry, EdgeCondTrue), 2)
	assert.Len(t, successors(cfg, cfg.Entry, EdgeCondFalse), 1)
}

func TestNormalizeExpr(t *testing.T) {
	assert.Equal(t, "flag", normalizeExpr("  flag "))
	assert.Equal(t, "not(flag)", normalizeExpr("not flag"))
	assert.Equal(t, "not(flag)", normalizeExpr("not (flag)"))
	assert.Equal(t, "x>1", normalizeExpr("( x > 1 )"))
	assert.Equal(t, "notx", normalizeExpr("notx"), "identifier prefix is not a negation")
}
