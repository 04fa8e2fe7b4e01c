package autodiff

import (
	"fmt"
	"math"
	"strconv"
	"sync"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// ============================================================
// Graph: reverse-mode arena
// ============================================================

// Node is a handle into a Graph arena.
type Node int

type edge struct {
	child   Node    // downstream node computed from this one
	partial float64 // d child / d this
}

type graphNode struct {
	value    float64
	op       string
	constant bool // no variable flows into this node
	children []edge
}

type nodeState uint8

const (
	unvisited nodeState = iota
	computing
	cached
)

// Graph records every elementary operation of one formula evaluation. Each
// operand gets an edge (result, local partial); because operands always exist
// before their results, handles are a topological order and the arena is a
// DAG by construction.
//
// A Graph is built by one goroutine. Derivative queries may run concurrently
// once building is done; the memo is guarded by a mutex.
type Graph struct {
	mu    sync.Mutex
	nodes []graphNode

	// powers with a non-positive base and a non-constant exponent
	signed []signedPow

	root  Node
	memo  []float64
	state []nodeState
}

type signedPow struct {
	exponent Node
	base     float64
}

func NewGraph() *Graph { return &Graph{root: -1} }

func (g *Graph) push(n graphNode) Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = append(g.nodes, n)
	return Node(len(g.nodes) - 1)
}

func (g *Graph) link(from, to Node, partial float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[from].children = append(g.nodes[from].children, edge{child: to, partial: partial})
}

// Var adds an input leaf.
func (g *Graph) Var(v float64) Node { return g.push(graphNode{value: v, op: "var"}) }

// Const adds a constant leaf; derivatives never flow into it.
func (g *Graph) Const(v float64) Node {
	return g.push(graphNode{value: v, op: "const", constant: true})
}

func (g *Graph) Value(n Node) float64 { return g.nodes[n].value }

// Len is the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Edges is the number of recorded (child, partial) pairs.
func (g *Graph) Edges() int {
	total := 0
	for _, n := range g.nodes {
		total += len(n.children)
	}
	return total
}

func (g *Graph) isConst(n Node) bool { return g.nodes[n].constant }

func (g *Graph) unary(op string, x Node, v, partial float64) Node {
	out := g.push(graphNode{value: v, op: op, constant: g.isConst(x)})
	g.link(x, out, partial)
	return out
}

func (g *Graph) binary(op string, a, b Node, v, pa, pb float64) Node {
	out := g.push(graphNode{value: v, op: op, constant: g.isConst(a) && g.isConst(b)})
	g.link(a, out, pa)
	g.link(b, out, pb)
	return out
}

func (g *Graph) Add(a, b Node) Node {
	return g.binary("+", a, b, g.Value(a)+g.Value(b), 1, 1)
}

func (g *Graph) Sub(a, b Node) Node {
	return g.binary("-", a, b, g.Value(a)-g.Value(b), 1, -1)
}

func (g *Graph) Mul(a, b Node) Node {
	va, vb := g.Value(a), g.Value(b)
	return g.binary("*", a, b, va*vb, vb, va)
}

func (g *Graph) Div(a, b Node) (Node, error) {
	va, vb := g.Value(a), g.Value(b)
	if vb == 0 {
		return -1, divisionByZero("/")
	}
	return g.binary("/", a, b, va/vb, 1/vb, -va/(vb*vb)), nil
}

func (g *Graph) Neg(x Node) Node { return g.unary("neg", x, -g.Value(x), -1) }

// Pow records a**b. The exponent edge ln(a)·a^b needs a > 0. With a
// non-positive base the exponent edge is recorded as 0 and the power is
// remembered; CheckExponents rejects it once the exponent turns out to
// depend on an input.
func (g *Graph) Pow(a, b Node) (Node, error) {
	va, vb := g.Value(a), g.Value(b)
	v := math.Pow(va, vb)
	var pa float64
	if !g.isConst(a) {
		pa = vb * math.Pow(va, vb-1)
	}
	if g.isConst(b) {
		return g.unary("**", a, v, pa), nil
	}
	if va > 0 {
		return g.binary("**", a, b, v, pa, math.Log(va)*v), nil
	}
	out := g.binary("**", a, b, v, pa, 0)
	g.mu.Lock()
	g.signed = append(g.signed, signedPow{exponent: b, base: va})
	g.mu.Unlock()
	return out, nil
}

// CheckExponents returns ErrDomain if a power with a non-positive base has
// an exponent whose derivative with respect to any of wrt is non-zero. An
// exponent like y*0 is structurally varying but never moves, so it passes.
func (g *Graph) CheckExponents(wrt []Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range g.signed {
		g.prepare(p.exponent)
		for _, n := range wrt {
			if g.accumulate(n) != 0 {
				return domainError("**", p.base, "non-positive base with a varying exponent")
			}
		}
	}
	return nil
}

// Apply records f(x) with the edge (f(x), f'(x)).
func (g *Graph) Apply(f *Function, x Node) (Node, error) {
	vx := g.Value(x)
	if err := f.check(vx); err != nil {
		return -1, err
	}
	var partial float64
	if !g.isConst(x) {
		partial = f.Deriv(vx)
	}
	return g.unary(f.Name, x, f.Eval(vx), partial), nil
}

// Log records log_base(x) for a constant base.
func (g *Graph) Log(x Node, base float64) (Node, error) {
	if err := checkLogBase(base); err != nil {
		return -1, err
	}
	vx := g.Value(x)
	if err := FuncLog.check(vx); err != nil {
		return -1, err
	}
	lb := math.Log(base)
	return g.unary("log", x, math.Log(vx)/lb, 1/(vx*lb)), nil
}

// ============================================================
// Reverse accumulation
// ============================================================

// Partial returns d root / d wrt, summing local_partial·d root/d child over
// every edge leaving wrt. Results are memoised per root; a later query for
// the same root reuses every sub-path already computed. Querying never
// changes nodes or edges.
func (g *Graph) Partial(root, wrt Node) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prepare(root)
	return g.accumulate(wrt)
}

// Gradient returns d root / d n for each n in wrt.
func (g *Graph) Gradient(root Node, wrt []Node) []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prepare(root)
	out := make([]float64, len(wrt))
	for i, n := range wrt {
		out[i] = g.accumulate(n)
	}
	return out
}

// prepare binds the memo to root, resetting it when root changes and
// growing it when nodes were added since the last query. Nodes added after
// root cannot reach it, so existing entries stay valid.
func (g *Graph) prepare(root Node) {
	if root < 0 || int(root) >= len(g.nodes) {
		panic(fmt.Sprintf("autodiff: node %d out of range", root))
	}
	if g.root != root {
		g.root = root
		g.memo = make([]float64, len(g.nodes))
		g.state = make([]nodeState, len(g.nodes))
		return
	}
	for len(g.memo) < len(g.nodes) {
		g.memo = append(g.memo, 0)
		g.state = append(g.state, unvisited)
	}
}

// accumulate walks the children of n in iterative post-order.
func (g *Graph) accumulate(n Node) float64 {
	if g.state[n] == cached {
		return g.memo[n]
	}
	stack := []Node{n}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		switch g.state[top] {
		case cached:
			stack = stack[:len(stack)-1]
		case unvisited:
			switch {
			case top == g.root:
				g.finish(top, 1)
				stack = stack[:len(stack)-1]
			case top > g.root:
				g.finish(top, 0)
				stack = stack[:len(stack)-1]
			default:
				g.state[top] = computing
				for _, e := range g.nodes[top].children {
					if g.state[e.child] == unvisited {
						stack = append(stack, e.child)
					}
				}
			}
		case computing:
			var sum float64
			for _, e := range g.nodes[top].children {
				if e.partial != 0 {
					sum += e.partial * g.memo[e.child]
				}
			}
			g.finish(top, sum)
			stack = stack[:len(stack)-1]
		}
	}
	return g.memo[n]
}

func (g *Graph) finish(n Node, v float64) {
	g.memo[n] = v
	g.state[n] = cached
}

// ============================================================
// Algebra adapter
// ============================================================

// Algebra returns the Algebra that records operations into g.
func (g *Graph) Algebra() Algebra[Node] { return graphAlgebra{g} }

type graphAlgebra struct{ g *Graph }

func (a graphAlgebra) Const(v float64) Node        { return a.g.Const(v) }
func (a graphAlgebra) Value(x Node) float64        { return a.g.Value(x) }
func (a graphAlgebra) Add(x, y Node) (Node, error) { return a.g.Add(x, y), nil }
func (a graphAlgebra) Sub(x, y Node) (Node, error) { return a.g.Sub(x, y), nil }
func (a graphAlgebra) Mul(x, y Node) (Node, error) { return a.g.Mul(x, y), nil }
func (a graphAlgebra) Div(x, y Node) (Node, error) { return a.g.Div(x, y) }
func (a graphAlgebra) Pow(x, y Node) (Node, error) { return a.g.Pow(x, y) }
func (a graphAlgebra) Neg(x Node) (Node, error)    { return a.g.Neg(x), nil }

func (a graphAlgebra) Apply(f *Function, x Node) (Node, error) {
	return a.g.Apply(f, x)
}

// ============================================================
// Export and validation
// ============================================================

type dotNode struct {
	id    int64
	label string
}

func (n dotNode) ID() int64     { return n.id }
func (n dotNode) DOTID() string { return "n" + strconv.FormatInt(n.id, 10) }
func (n dotNode) Attributes() []encoding.Attribute {
	return []encoding.Attribute{{Key: "label", Value: strconv.Quote(n.label)}}
}

type dotEdge struct {
	from, to dotNode
	partial  float64
}

func (e dotEdge) From() graph.Node         { return e.from }
func (e dotEdge) To() graph.Node           { return e.to }
func (e dotEdge) ReversedEdge() graph.Edge { return dotEdge{from: e.to, to: e.from, partial: e.partial} }
func (e dotEdge) Attributes() []encoding.Attribute {
	return []encoding.Attribute{{Key: "label", Value: strconv.Quote(strconv.FormatFloat(e.partial, 'g', 6, 64))}}
}

func (g *Graph) directed() *simple.DirectedGraph {
	g.mu.Lock()
	defer g.mu.Unlock()
	dg := simple.NewDirectedGraph()
	nodes := make([]dotNode, len(g.nodes))
	for i, n := range g.nodes {
		nodes[i] = dotNode{
			id:    int64(i),
			label: fmt.Sprintf("%s = %s", n.op, strconv.FormatFloat(n.value, 'g', 6, 64)),
		}
		dg.AddNode(nodes[i])
	}
	for i, n := range g.nodes {
		for _, e := range n.children {
			if Node(i) == e.child {
				continue
			}
			dg.SetEdge(dotEdge{from: nodes[i], to: nodes[e.child], partial: e.partial})
		}
	}
	return dg
}

// DOT renders the graph in Graphviz format, edges labelled with their local
// partials.
func (g *Graph) DOT(name string) (string, error) {
	b, err := dot.Marshal(g.directed(), name, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Validate checks that the recorded operations form a DAG whose edges
// always point from older to newer nodes.
func (g *Graph) Validate() error {
	g.mu.Lock()
	for i, n := range g.nodes {
		for _, e := range n.children {
			if e.child <= Node(i) {
				g.mu.Unlock()
				return fmt.Errorf("edge %d -> %d does not follow creation order", i, e.child)
			}
		}
	}
	g.mu.Unlock()
	if _, err := topo.Sort(g.directed()); err != nil {
		return fmt.Errorf("graph is not acyclic: %v", err)
	}
	return nil
}
