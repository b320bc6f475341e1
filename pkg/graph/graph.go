package graph

import (
	"github.com/matzehuels/depot/pkg/artifact"
	"github.com/matzehuels/depot/pkg/repository"
	"github.com/matzehuels/depot/pkg/version"
)

// NodeID indexes a node in its [Graph].
type NodeID int

// EdgeID indexes an edge in its [Graph].
type EdgeID int

// NoNode marks the missing source of the root edge.
const NoNode NodeID = -1

// NoEdge is returned where an edge is absent.
const NoEdge EdgeID = -1

// Omission explains why an edge does not contribute to the resolved set.
type Omission int

const (
	// Included edges take part in the resolution.
	Included Omission = iota
	// OmittedConflict marks an edge that lost its conflict group.
	OmittedConflict
	// OmittedCycle marks an edge that closes a cycle on its path.
	OmittedCycle
	// OmittedOptional marks a dependency that is optional on every path.
	OmittedOptional
	// OmittedUnreachable marks an edge whose every path runs through an
	// omitted ancestor.
	OmittedUnreachable
)

var omissionNames = map[Omission]string{
	Included:           "included",
	OmittedConflict:    "omitted for conflict",
	OmittedCycle:       "omitted for cycle",
	OmittedOptional:    "omitted optional",
	OmittedUnreachable: "omitted unreachable",
}

func (o Omission) String() string { return omissionNames[o] }

// Node is a resolved point in the dependency tree.
type Node struct {
	ID           NodeID
	Dependency   artifact.Dependency
	Out          []EdgeID
	Repositories []repository.RemoteRepository
	Aliases      []artifact.Artifact
	Data         Data
}

// Edge is a declared relationship from Source to Target.
type Edge struct {
	ID     EdgeID
	Source NodeID
	Target NodeID

	Dependency        artifact.Dependency
	PremanagedScope   artifact.Scope
	PremanagedVersion string
	Relocations       []artifact.Artifact
	Constraint        version.Constraint
	Version           version.Version

	// Depth is the distance from the root edge (root = 0).
	Depth   int
	Omitted Omission
	Data    Data

	requestContext string
}

// RequestContext returns the context the edge was requested in; never nil,
// possibly empty.
func (e *Edge) RequestContext() string { return e.requestContext }

// SetRequestContext stores the request context.
func (e *Edge) SetRequestContext(ctx string) { e.requestContext = ctx }

// SetScope rewrites the edge's dependency scope without touching any
// previously stored Dependency value.
func (e *Edge) SetScope(s artifact.Scope) { e.Dependency = e.Dependency.SetScope(s) }

// SetArtifact rewrites the edge's dependency artifact.
func (e *Edge) SetArtifact(a artifact.Artifact) { e.Dependency = e.Dependency.SetArtifact(a) }

// IsIncluded reports whether the edge takes part in the resolution.
func (e *Edge) IsIncluded() bool { return e.Omitted == Included }

// Graph is an arena of nodes and edges with a single root edge.
//
// Graph is not safe for concurrent mutation. The collector owns it while
// expanding, the conflict resolver while resolving, and it is read-only
// afterwards.
type Graph struct {
	nodes []*Node
	edges []*Edge
	root  EdgeID
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{root: NoEdge}
}

// AddNode appends a node for dep.
func (g *Graph) AddNode(dep artifact.Dependency) *Node {
	n := &Node{ID: NodeID(len(g.nodes)), Dependency: dep}
	g.nodes = append(g.nodes, n)
	return n
}

// AddEdge appends an edge from source to target and registers it as the
// source's last outgoing edge. A [NoNode] source creates a free-standing
// edge, as used for the root.
func (g *Graph) AddEdge(source, target NodeID, dep artifact.Dependency) *Edge {
	e := &Edge{ID: EdgeID(len(g.edges)), Source: source, Target: target, Dependency: dep}
	g.edges = append(g.edges, e)
	if source != NoNode {
		src := g.nodes[source]
		src.Out = append(src.Out, e.ID)
	}
	return e
}

// SetRoot marks e as the root edge.
func (g *Graph) SetRoot(e EdgeID) { g.root = e }

// Root returns the root edge or [NoEdge].
func (g *Graph) Root() EdgeID { return g.root }

// Node returns the node with the given ID.
func (g *Graph) Node(id NodeID) *Node { return g.nodes[id] }

// Edge returns the edge with the given ID.
func (g *Graph) Edge(id EdgeID) *Edge { return g.edges[id] }

// Target returns the node the edge points at.
func (g *Graph) Target(id EdgeID) *Node { return g.nodes[g.edges[id].Target] }

// Children returns the outgoing edges of the edge's target node. The slice
// is owned by the node; callers must not modify it.
func (g *Graph) Children(id EdgeID) []EdgeID {
	return g.Target(id).Out
}

// EdgeRepositories returns the repositories of the edge's target node.
func (g *Graph) EdgeRepositories(id EdgeID) []repository.RemoteRepository {
	return g.Target(id).Repositories
}

// EdgeAliases returns the relocation aliases of the edge's target node.
func (g *Graph) EdgeAliases(id EdgeID) []artifact.Artifact {
	return g.Target(id).Aliases
}

// Nodes returns all nodes in creation order.
func (g *Graph) Nodes() []*Node { return g.nodes }

// Edges returns all edges in creation order.
func (g *Graph) Edges() []*Edge { return g.edges }

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Flatten returns the included edges reachable from the root in pre-order.
// An edge reached through several shared subtrees is listed once.
func Flatten(g *Graph) []*Edge {
	if g.root == NoEdge {
		return nil
	}
	var out []*Edge
	seen := make(map[EdgeID]bool)
	Walk(g, g.root, func(e *Edge) Action {
		if !e.IsIncluded() || seen[e.ID] {
			return SkipChildren
		}
		seen[e.ID] = true
		out = append(out, e)
		return Continue
	}, nil)
	return out
}
