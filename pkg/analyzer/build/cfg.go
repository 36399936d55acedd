package build

// EdgeKind labels a control-flow edge.
type EdgeKind int

const (
	EdgeNormal EdgeKind = iota
	EdgeCondTrue
	EdgeCondFalse
	EdgeException
	EdgeLoopBack
	EdgeLoopExit
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeCondTrue:
		return "true"
	case EdgeCondFalse:
		return "false"
	case EdgeException:
		return "exception"
	case EdgeLoopBack:
		return "loop-back"
	case EdgeLoopExit:
		return "loop-exit"
	default:
		return "normal"
	}
}

// TermKind labels how a basic block ends when it ends with a control
// transfer.
type TermKind int

const (
	TermNone TermKind = iota
	TermReturn
	TermRaise
	TermBreak
	TermContinue
	TermExitCall // sys.exit and friends
)

func (t TermKind) String() string {
	switch t {
	case TermReturn:
		return "return"
	case TermRaise:
		return "raise"
	case TermBreak:
		return "break"
	case TermContinue:
		return "continue"
	case TermExitCall:
		return "process exit"
	default:
		return ""
	}
}

// Stmt is one statement placed into a basic block.
type Stmt struct {
	StartLine int
	EndLine   int
	Type      string // tree-sitter node type
}

// Edge is one outgoing control-flow edge.
type Edge struct {
	To   int
	Kind EdgeKind
}

// Block is a basic block: a maximal straight-line run of statements.
type Block struct {
	ID    int
	Stmts []Stmt
	Succs []Edge

	// Terminator is set when the block ends with a control transfer.
	Terminator TermKind
	// InFinally marks blocks belonging to a finally clause. They always
	// execute regardless of how control left the protected region and are
	// never reported dead because of the protected region's exit.
	InFinally bool
	// Reason, when non-empty, explains why the builder expects this block
	// to be unreachable (trailing statements after a terminator, a
	// statically false branch, code after an infinite loop).
	Reason string
}

// AddStmt appends a statement to the block.
func (b *Block) AddStmt(start, end int, nodeType string) {
	b.Stmts = append(b.Stmts, Stmt{StartLine: start, EndLine: end, Type: nodeType})
}

// Span returns the source line range covered by the block's statements.
// ok is false for empty synthetic blocks.
func (b *Block) Span() (start, end int, ok bool) {
	if len(b.Stmts) == 0 {
		return 0, 0, false
	}
	start = b.Stmts[0].StartLine
	end = b.Stmts[0].EndLine
	for _, s := range b.Stmts[1:] {
		if s.StartLine < start {
			start = s.StartLine
		}
		if s.EndLine > end {
			end = s.EndLine
		}
	}
	return start, end, true
}

// Handler describes one except clause for handler-ordering analysis.
type Handler struct {
	Block     int
	ExcTypes  []string // caught exception type names; empty means bare except
	StartLine int
	EndLine   int
}

// CFG is the control-flow graph of one function or method. Exactly one
// entry block; one synthetic exit block that may be unreachable when the
// function cannot return (infinite loop with no break).
type CFG struct {
	FuncName string
	Entry    int
	Exit     int
	Blocks   []*Block

	// HandlerChains groups the except clauses of each try statement in
	// source order, for exception-subsumption checks.
	HandlerChains [][]Handler
}

// Block returns the block with the given ID.
func (c *CFG) Block(id int) *Block {
	return c.Blocks[id]
}

// connect adds an edge between two blocks, skipping duplicates.
func (c *CFG) connect(from, to int, kind EdgeKind) {
	b := c.Blocks[from]
	for _, e := range b.Succs {
		if e.To == to && e.Kind == kind {
			return
		}
	}
	b.Succs = append(b.Succs, Edge{To: to, Kind: kind})
}

// newBlock appends a fresh empty block and returns its ID.
func (c *CFG) newBlock() int {
	id := len(c.Blocks)
	c.Blocks = append(c.Blocks, &Block{ID: id})
	return id
}
