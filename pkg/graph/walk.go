package graph

// Visitor receives enter/leave callbacks during [Accept].
//
// Enter returning false skips the edge's children; Leave is still called.
// Leave returning false stops the iteration over the remaining siblings.
type Visitor interface {
	Enter(e *Edge) bool
	Leave(e *Edge) bool
}

// VisitorFuncs adapts two functions to [Visitor]. A nil function behaves
// as if it returned true.
type VisitorFuncs struct {
	EnterFunc func(e *Edge) bool
	LeaveFunc func(e *Edge) bool
}

func (v VisitorFuncs) Enter(e *Edge) bool {
	if v.EnterFunc == nil {
		return true
	}
	return v.EnterFunc(e)
}

func (v VisitorFuncs) Leave(e *Edge) bool {
	if v.LeaveFunc == nil {
		return true
	}
	return v.LeaveFunc(e)
}

type frame struct {
	id      EdgeID
	kids    []EdgeID
	next    int
	stopped bool
}

// Accept visits the subtree under root. It calls Enter on each edge; when
// Enter returns true the edge's children are visited in order, stopping
// early once a child's visit returns false. Leave is always called and its
// result is the result of the edge's visit, which Accept returns for root.
//
// The traversal uses an explicit stack. Shared subtrees are visited once per
// path that reaches them.
func Accept(g *Graph, root EdgeID, v Visitor) bool {
	var (
		stack []frame
		last  bool
	)
	open := func(id EdgeID) bool {
		e := g.edges[id]
		if v.Enter(e) {
			stack = append(stack, frame{id: id, kids: g.Children(id)})
			return true
		}
		last = v.Leave(e)
		return false
	}

	open(root)
	for len(stack) > 0 {
		i := len(stack) - 1
		if f := stack[i]; !f.stopped && f.next < len(f.kids) {
			child := f.kids[f.next]
			stack[i].next++
			if !open(child) && !last {
				stack[i].stopped = true
			}
			continue
		}
		id := stack[i].id
		stack = stack[:i]
		last = v.Leave(g.edges[id])
		if len(stack) > 0 && !last {
			stack[len(stack)-1].stopped = true
		}
	}
	return last
}

// Action tells [Walk] how to proceed after entering an edge.
type Action int

const (
	// Continue descends into the edge's children.
	Continue Action = iota
	// SkipChildren moves on to the next sibling.
	SkipChildren
	// Stop ends the walk.
	Stop
)

// Walk visits the subtree under root in pre-order. leave may be nil. It
// reports whether the walk ran to completion.
func Walk(g *Graph, root EdgeID, enter func(e *Edge) Action, leave func(e *Edge)) bool {
	stopped := false
	Accept(g, root, VisitorFuncs{
		EnterFunc: func(e *Edge) bool {
			if stopped {
				return false
			}
			switch enter(e) {
			case Stop:
				stopped = true
				return false
			case SkipChildren:
				return false
			}
			return true
		},
		LeaveFunc: func(e *Edge) bool {
			if leave != nil {
				leave(e)
			}
			return !stopped
		},
	})
	return !stopped
}
