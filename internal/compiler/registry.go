package compiler

// Registry holds compiled statements and result maps by id. It is built
// once and read-only afterwards.
type Registry struct {
	statements map[string]*Statement
	order      []string
	resultMaps map[string]*ResultMap
	mapOrder   []string
}

func newRegistry() *Registry {
	return &Registry{
		statements: make(map[string]*Statement),
		resultMaps: make(map[string]*ResultMap),
	}
}

func (r *Registry) add(st *Statement) {
	if _, ok := r.statements[st.ID]; !ok {
		r.order = append(r.order, st.ID)
	}
	r.statements[st.ID] = st
	if st.ResultMap != nil {
		r.addResultMap(st.ResultMap)
	}
}

func (r *Registry) addResultMap(rm *ResultMap) {
	if _, ok := r.resultMaps[rm.ID]; ok {
		return
	}
	r.resultMaps[rm.ID] = rm
	r.mapOrder = append(r.mapOrder, rm.ID)
}

// Statement looks up a statement by id.
func (r *Registry) Statement(id string) (*Statement, bool) {
	st, ok := r.statements[id]
	return st, ok
}

// Pageable looks up a statement whose SQL the pagination rewriter may
// rewrite. Hand-written and scalar statements are not returned.
func (r *Registry) Pageable(id string) (*Statement, bool) {
	st, ok := r.statements[id]
	if !ok || !st.Pageable() {
		return nil, false
	}
	return st, true
}

// Statements returns every statement in compile order.
func (r *Registry) Statements() []*Statement {
	out := make([]*Statement, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.statements[id])
	}
	return out
}

// Namespaces returns the namespaces in compile order.
func (r *Registry) Namespaces() []string {
	var out []string
	seen := make(map[string]bool)
	for _, id := range r.order {
		ns := r.statements[id].Namespace()
		if !seen[ns] {
			seen[ns] = true
			out = append(out, ns)
		}
	}
	return out
}

// ResultMap looks up a result map by id.
func (r *Registry) ResultMap(id string) (*ResultMap, bool) {
	rm, ok := r.resultMaps[id]
	return rm, ok
}

// Len returns the number of statements.
func (r *Registry) Len() int {
	return len(r.order)
}
