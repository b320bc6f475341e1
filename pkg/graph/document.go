package graph

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/matzehuels/depot/pkg/artifact"
	"github.com/matzehuels/depot/pkg/repository"
	"github.com/matzehuels/depot/pkg/version"
)

// Document is the JSON form of a [Graph], used by `depot tree --format json`
// and for fixtures in tests. Converting a graph to a document and back
// preserves structure, versions and omissions; data bags are not serialized.
type Document struct {
	Root  int            `json:"root"`
	Nodes []DocumentNode `json:"nodes"`
	Edges []DocumentEdge `json:"edges"`
}

// DocumentNode is a serialized [Node].
type DocumentNode struct {
	ID         int      `json:"id"`
	Artifact   string   `json:"artifact,omitempty"`
	Scope      string   `json:"scope,omitempty"`
	Optional   bool     `json:"optional,omitempty"`
	Aliases    []string `json:"aliases,omitempty"`
	Repository []string `json:"repositories,omitempty"`
}

// DocumentEdge is a serialized [Edge].
type DocumentEdge struct {
	ID          int      `json:"id"`
	From        int      `json:"from"`
	To          int      `json:"to"`
	Artifact    string   `json:"artifact,omitempty"`
	Scope       string   `json:"scope,omitempty"`
	Optional    bool     `json:"optional,omitempty"`
	Constraint  string   `json:"constraint,omitempty"`
	Version     string   `json:"version,omitempty"`
	Depth       int      `json:"depth"`
	Omitted     int      `json:"omitted,omitempty"`
	Relocations []string `json:"relocations,omitempty"`
}

// ToDocument converts g to its serialized form.
func ToDocument(g *Graph) Document {
	doc := Document{
		Root:  int(g.root),
		Nodes: make([]DocumentNode, len(g.nodes)),
		Edges: make([]DocumentEdge, len(g.edges)),
	}
	for i, n := range g.nodes {
		dn := DocumentNode{
			ID:       int(n.ID),
			Artifact: coordinate(n.Dependency.Artifact),
			Scope:    string(n.Dependency.Scope),
			Optional: n.Dependency.Optional,
		}
		for _, a := range n.Aliases {
			dn.Aliases = append(dn.Aliases, a.String())
		}
		for _, r := range n.Repositories {
			dn.Repository = append(dn.Repository, r.ID)
		}
		doc.Nodes[i] = dn
	}
	for i, e := range g.edges {
		de := DocumentEdge{
			ID:         int(e.ID),
			From:       int(e.Source),
			To:         int(e.Target),
			Artifact:   coordinate(e.Dependency.Artifact),
			Scope:      string(e.Dependency.Scope),
			Optional:   e.Dependency.Optional,
			Constraint: e.Constraint.String(),
			Version:    e.Version.String(),
			Depth:      e.Depth,
			Omitted:    int(e.Omitted),
		}
		for _, a := range e.Relocations {
			de.Relocations = append(de.Relocations, a.String())
		}
		doc.Edges[i] = de
	}
	return doc
}

// FromDocument rebuilds a graph. Node repositories are restored by ID only.
func FromDocument(doc Document) (*Graph, error) {
	g := New()
	for i, dn := range doc.Nodes {
		if dn.ID != i {
			return nil, fmt.Errorf("node %d: out of order (want %d)", dn.ID, i)
		}
		dep, err := dependency(dn.Artifact, dn.Scope, dn.Optional)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", dn.ID, err)
		}
		n := g.AddNode(dep)
		for _, s := range dn.Aliases {
			a, err := artifact.Parse(s)
			if err != nil {
				return nil, fmt.Errorf("node %d alias: %w", dn.ID, err)
			}
			n.Aliases = append(n.Aliases, a)
		}
		for _, id := range dn.Repository {
			n.Repositories = append(n.Repositories, repository.RemoteRepository{ID: id})
		}
	}
	for i, de := range doc.Edges {
		if de.ID != i {
			return nil, fmt.Errorf("edge %d: out of order (want %d)", de.ID, i)
		}
		if !g.validNode(NodeID(de.To)) || (de.From != int(NoNode) && !g.validNode(NodeID(de.From))) {
			return nil, fmt.Errorf("edge %d: dangling endpoint %d->%d", de.ID, de.From, de.To)
		}
		dep, err := dependency(de.Artifact, de.Scope, de.Optional)
		if err != nil {
			return nil, fmt.Errorf("edge %d: %w", de.ID, err)
		}
		e := g.AddEdge(NodeID(de.From), NodeID(de.To), dep)
		e.Depth = de.Depth
		e.Omitted = Omission(de.Omitted)
		if de.Constraint != "" {
			if e.Constraint, err = version.ParseConstraint(de.Constraint); err != nil {
				return nil, fmt.Errorf("edge %d: %w", de.ID, err)
			}
		}
		if de.Version != "" {
			if e.Version, err = version.Parse(de.Version); err != nil {
				return nil, fmt.Errorf("edge %d: %w", de.ID, err)
			}
		}
		for _, s := range de.Relocations {
			a, err := artifact.Parse(s)
			if err != nil {
				return nil, fmt.Errorf("edge %d relocation: %w", de.ID, err)
			}
			e.Relocations = append(e.Relocations, a)
		}
	}
	if doc.Root != int(NoEdge) {
		if doc.Root < 0 || doc.Root >= len(g.edges) {
			return nil, fmt.Errorf("root edge %d out of range", doc.Root)
		}
		g.root = EdgeID(doc.Root)
	}
	return g, nil
}

// WriteGraph writes g as indented JSON.
func WriteGraph(g *Graph, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ToDocument(g))
}

// ReadGraph parses a graph written by [WriteGraph].
func ReadGraph(r io.Reader) (*Graph, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode graph: %w", err)
	}
	return FromDocument(doc)
}

func (g *Graph) validNode(id NodeID) bool {
	return id >= 0 && int(id) < len(g.nodes)
}

func coordinate(a artifact.Artifact) string {
	if a.GroupID == "" && a.ArtifactID == "" {
		return ""
	}
	return a.String()
}

func dependency(coord, scope string, optional bool) (artifact.Dependency, error) {
	if coord == "" {
		return artifact.Dependency{Scope: artifact.Scope(scope), Optional: optional}, nil
	}
	a, err := artifact.Parse(coord)
	if err != nil {
		return artifact.Dependency{}, err
	}
	return artifact.NewDependency(a, artifact.Scope(scope)).SetOptional(optional), nil
}
