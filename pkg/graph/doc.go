// Package graph holds the dependency graph built by the collector and pruned
// by the conflict resolver.
//
// # Model
//
// A [Graph] is an arena: nodes and edges live in slices and refer to each
// other by index ([NodeID], [EdgeID]). A [Node] is a resolved point in the
// tree (the winning dependency, its repositories and relocation aliases). An
// [Edge] is one declared relationship and carries what was requested at that
// point: the dependency as declared, premanaged scope and version, the
// version constraint and the concrete version chosen for it.
//
// An edge never owns children. [Graph.Children] returns the target node's
// outgoing edges, so several edges pointing at the same node share its
// subtree. Likewise [Graph.EdgeRepositories] and [Graph.EdgeAliases] read
// through to the target node.
//
// # Annotations
//
// Nodes and edges carry a [Data] bag for transient annotations. The bag
// allocates on first write and drops its map again once the last key is
// removed, so unannotated elements cost nothing.
//
// # Traversal
//
// [Accept] drives a [Visitor] with enter/leave callbacks over an explicit
// stack, so deep graphs do not grow the goroutine stack. [Walk] is a
// convenience wrapper with [Action] results.
package graph
