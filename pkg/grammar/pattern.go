package grammar

// stateKind is the kind of an NFA state.
type stateKind uint8

const (
	stateToken stateKind = iota // consumes one segment type, then goes to next
	stateSplit                  // epsilon transitions to every entry of eps, in priority order
	stateAccept
)

type state struct {
	kind stateKind
	typ  string
	next int
	eps  []int
}

// Pattern is a compiled, anchored matcher for a Spec. It is immutable and
// safe for concurrent use.
type Pattern struct {
	name   string
	source string
	key    uint64
	states []state
	start  int
}

// Compile builds the matcher for spec. Each quantified node is expanded
// into min mandatory copies followed by either max-min optional copies or
// a loop, so that simulation explores every split of the quantifiers.
func Compile(spec Spec) (*Pattern, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	b := &builder{}
	accept := b.add(state{kind: stateAccept})
	next := accept
	for i := len(spec.Nodes) - 1; i >= 0; i-- {
		next = b.node(spec.Nodes[i], next)
	}

	return &Pattern{
		name:   spec.Name,
		source: spec.String(),
		key:    spec.Key(),
		states: b.states,
		start:  next,
	}, nil
}

// MustCompile is like Compile but panics on a malformed spec.
func MustCompile(spec Spec) *Pattern {
	p, err := Compile(spec)
	if err != nil {
		panic(err)
	}
	return p
}

// builder constructs the state graph back to front: every call receives
// the state to continue with and returns the entry state of the fragment.
type builder struct {
	states []state
}

func (b *builder) add(s state) int {
	b.states = append(b.states, s)
	return len(b.states) - 1
}

func (b *builder) node(n Node, next int) int {
	once := func(cont int) int {
		if n.Kind == KindLeaf {
			return b.add(state{kind: stateToken, typ: n.Type, next: cont})
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			cont = b.node(n.Children[i], cont)
		}
		return cont
	}

	cur := next
	if n.IsUnbounded() {
		loop := b.add(state{kind: stateSplit})
		body := once(loop)
		b.states[loop].eps = []int{body, next}
		cur = loop
	} else {
		for i := 0; i < n.Max-n.Min; i++ {
			skip := b.add(state{kind: stateSplit})
			body := once(cur)
			b.states[skip].eps = []int{body, next}
			cur = skip
		}
	}
	for i := 0; i < n.Min; i++ {
		cur = once(cur)
	}
	return cur
}

// Name returns the name of the compiled spec.
func (p *Pattern) Name() string {
	return p.name
}

// Key returns the identity of the compiled spec.
func (p *Pattern) Key() uint64 {
	return p.key
}

// String returns the canonical anchored form of the compiled spec.
func (p *Pattern) String() string {
	return p.source
}

// Len returns the number of states in the matcher.
func (p *Pattern) Len() int {
	return len(p.states)
}

// Match reports whether the whole sequence of segment types conforms.
func (p *Pattern) Match(types []string) bool {
	ok, _ := p.Check(types)
	return ok
}

// Check matches types and, on failure, returns the index of the first
// segment that cannot be accepted. When every segment was consumed but
// required segments are missing at the end, the index equals len(types).
func (p *Pattern) Check(types []string) (bool, int) {
	current := p.closure([]int{p.start})
	for i, typ := range types {
		var moved []int
		for _, id := range current {
			s := p.states[id]
			if s.kind == stateToken && s.typ == typ {
				moved = append(moved, s.next)
			}
		}
		if len(moved) == 0 {
			return false, i
		}
		current = p.closure(moved)
	}
	for _, id := range current {
		if p.states[id].kind == stateAccept {
			return true, -1
		}
	}
	return false, len(types)
}

// closure follows epsilon transitions and returns the reachable token and
// accept states.
func (p *Pattern) closure(ids []int) []int {
	visited := make(map[int]bool, len(ids)*2)
	out := make([]int, 0, len(ids))
	stack := append([]int(nil), ids...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true
		s := p.states[id]
		if s.kind == stateSplit {
			for i := len(s.eps) - 1; i >= 0; i-- {
				stack = append(stack, s.eps[i])
			}
			continue
		}
		out = append(out, id)
	}
	return out
}
