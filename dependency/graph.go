package dependency

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/hashicorp/errwrap"
	"github.com/jumppad-labs/modeltypes/errors"
	"github.com/jumppad-labs/modeltypes/repository"
	"github.com/silas/dag"
)

type rootVertex struct{}

// Graph orders artifacts by the dependency records of their models
type Graph struct {
	graph     *dag.AcyclicGraph
	artifacts map[string]bool
	edges     map[string][]string
}

// NewGraph creates an empty graph
func NewGraph() *Graph {
	return &Graph{
		graph:     &dag.AcyclicGraph{},
		artifacts: map[string]bool{},
		edges:     map[string][]string{},
	}
}

// BuildGraph adds every node below root for which isArtifact returns true
// and connects it to the artifacts its models depend on. Records pointing
// outside the set of artifacts are ignored.
func BuildGraph(root *repository.Node, isArtifact func(n *repository.Node) bool) *Graph {
	g := NewGraph()
	artifacts := []*repository.Node{}

	root.Walk(func(n *repository.Node) bool {
		if isArtifact(n) {
			artifacts = append(artifacts, n)
			g.AddArtifact(n.Path())
		}

		return true
	})

	for _, a := range artifacts {
		for _, model := range a.Children {
			for _, r := range Records(model) {
				if r.Missing || !g.artifacts[r.Target] {
					continue
				}

				g.Connect(a.Path(), r.Target)
			}
		}
	}

	return g
}

// AddArtifact adds an artifact path to the graph
func (g *Graph) AddArtifact(path string) {
	if g.artifacts[path] {
		return
	}

	g.artifacts[path] = true
	g.graph.Add(path)
}

// Connect records that artifact depends on dependency
func (g *Graph) Connect(artifact, dependency string) {
	g.AddArtifact(artifact)
	g.AddArtifact(dependency)

	for _, d := range g.edges[artifact] {
		if d == dependency {
			return
		}
	}

	g.edges[artifact] = append(g.edges[artifact], dependency)
	g.graph.Connect(dag.BasicEdge(dependency, artifact))
}

// Dependencies returns the direct dependencies of artifact
func (g *Graph) Dependencies(artifact string) []string {
	deps := append([]string{}, g.edges[artifact]...)
	sort.Strings(deps)

	return deps
}

// Walk calls fn for every artifact after all of its dependencies have been
// visited. Independent artifacts may be visited concurrently. After the first
// error no further artifact is visited.
func (g *Graph) Walk(fn func(artifact string) error) error {
	op := "walk artifacts"

	if len(g.artifacts) == 0 {
		return nil
	}

	for a, deps := range g.edges {
		for _, d := range deps {
			if d == a {
				return errors.Wrap(op, fmt.Errorf("artifact %s depends on itself", a))
			}
		}
	}

	// the walker needs a single root
	root := rootVertex{}
	g.graph.Add(root)
	defer g.graph.Remove(root)

	for a := range g.artifacts {
		if len(g.edges[a]) == 0 {
			g.graph.Connect(dag.BasicEdge(root, a))
		}
	}

	if cycles := g.graph.Cycles(); len(cycles) > 0 {
		return errors.Wrap(op, fmt.Errorf("artifacts have circular dependencies: %v", cycles[0]))
	}

	g.graph.TransitiveReduction()

	if err := g.graph.Validate(); err != nil {
		return errors.Wrap(op, fmt.Errorf("unable to validate dependency graph: %w", err))
	}

	hasError := atomic.Bool{}

	w := dag.Walker{}
	w.Callback = func(v dag.Vertex) (diags dag.Diagnostics) {
		a, ok := v.(string)
		if !ok || hasError.Load() {
			return nil
		}

		if err := fn(a); err != nil {
			hasError.Store(true)
			return diags.Append(err)
		}

		return nil
	}

	w.Update(g.graph)

	diags := w.Wait()
	if diags.HasErrors() {
		err := diags.Err()
		if wrapped, ok := err.(errwrap.Wrapper); ok && len(wrapped.WrappedErrors()) > 0 {
			err = wrapped.WrappedErrors()[0]
		}

		return errors.Wrap(op, err)
	}

	return nil
}
