package dependency

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/jumppad-labs/modeltypes/errors"
	"github.com/jumppad-labs/modeltypes/repository"
	"github.com/stretchr/testify/require"
)

func collectWalk(t *testing.T, g *Graph) []string {
	mu := sync.Mutex{}
	visited := []string{}

	err := g.Walk(func(a string) error {
		mu.Lock()
		defer mu.Unlock()

		visited = append(visited, a)
		return nil
	})
	require.NoError(t, err)

	return visited
}

func indexOf(list []string, s string) int {
	for i, l := range list {
		if l == s {
			return i
		}
	}

	return -1
}

func TestGraphWalksDependenciesFirst(t *testing.T) {
	g := NewGraph()
	g.Connect("/movies.xsd", "/types.xsd")
	g.Connect("/types.xsd", "/common.xsd")
	g.Connect("/movies.xsd", "/common.xsd")
	g.AddArtifact("/other.xsd")

	visited := collectWalk(t, g)
	require.Len(t, visited, 4)

	require.Less(t, indexOf(visited, "/common.xsd"), indexOf(visited, "/types.xsd"))
	require.Less(t, indexOf(visited, "/types.xsd"), indexOf(visited, "/movies.xsd"))
	require.Contains(t, visited, "/other.xsd")
}

func TestGraphReturnsErrorForCycles(t *testing.T) {
	g := NewGraph()
	g.Connect("/a.xsd", "/b.xsd")
	g.Connect("/b.xsd", "/a.xsd")

	err := g.Walk(func(a string) error { return nil })
	require.ErrorIs(t, err, errors.ErrProcessing)
}

func TestGraphReturnsErrorForSelfReferences(t *testing.T) {
	g := NewGraph()
	g.Connect("/a.xsd", "/a.xsd")

	err := g.Walk(func(a string) error { return nil })
	require.ErrorIs(t, err, errors.ErrProcessing)
}

func TestGraphStopsAfterFirstError(t *testing.T) {
	g := NewGraph()
	g.Connect("/movies.xsd", "/types.xsd")

	visited := []string{}
	err := g.Walk(func(a string) error {
		visited = append(visited, a)
		return fmt.Errorf("unable to process %s", a)
	})

	require.Error(t, err)
	require.Equal(t, []string{"/types.xsd"}, visited)
}

func TestGraphWalkOfEmptyGraphDoesNothing(t *testing.T) {
	require.NoError(t, NewGraph().Walk(func(a string) error {
		return fmt.Errorf("unexpected call")
	}))
}

func TestBuildGraphUsesDependencyRecords(t *testing.T) {
	root := repository.NewRoot()
	addArtifact(t, root, "movies", "MovieDatatypes.xsd")
	model := setupModel(t, root, "movies", "MovieDatatypes.xsd", "missing.xsd")

	_, err := newTestProcessor().Process(context.Background(), model)
	require.NoError(t, err)

	g := BuildGraph(root, func(n *repository.Node) bool {
		return n.PrimaryType == "artifact"
	})

	require.Equal(t, []string{"/movies/MovieDatatypes.xsd"}, g.Dependencies("/movies/movies.xsd"))

	visited := collectWalk(t, g)
	require.Equal(t, []string{"/movies/MovieDatatypes.xsd", "/movies/movies.xsd"}, visited)
}
