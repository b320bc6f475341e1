package graph

// State is the progress of a node through collection and resolution. It is
// stored in the node's data bag under [KeyState].
type State int

const (
	Pending State = iota
	DescriptorRequested
	Expanded
	ConflictResolved
	Done
	// CycleDetected is terminal: the node repeats a coordinate already on
	// its path and is never expanded.
	CycleDetected
)

var stateNames = [...]string{"pending", "descriptor-requested", "expanded", "conflict-resolved", "done", "cycle-detected"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// NodeState returns the state recorded on n, or [Pending].
func NodeState(n *Node) State {
	s, _ := Lookup[State](n.Data, KeyState)
	return s
}

// SetNodeState records s on n.
func SetNodeState(n *Node, s State) { n.Data.Set(KeyState, s) }
