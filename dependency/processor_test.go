package dependency

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/jumppad-labs/modeltypes/errors"
	"github.com/jumppad-labs/modeltypes/repository"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const (
	testModelType  = "xsd.XsdModel"
	testSchemaType = "xs:schemaDocument"
)

func newTestProcessor(opts ...Option) *SchemaProcessor {
	return NewSchemaProcessor(
		testModelType,
		testSchemaType,
		[]string{"xs:import", "xs:include", "xs:redefine"},
		"schemaLocation",
		opts...,
	)
}

func addFolder(t *testing.T, root *repository.Node, folder string) *repository.Node {
	f := root
	for _, seg := range strings.Split(strings.Trim(folder, "/"), "/") {
		if seg == "" {
			continue
		}

		if c, ok := f.Child(seg); ok {
			f = c
			continue
		}

		c, err := f.AddNode(seg, "folder")
		require.NoError(t, err)
		f = c
	}

	return f
}

func addArtifact(t *testing.T, root *repository.Node, folder, name string) *repository.Node {
	a, err := addFolder(t, root, folder).AddNode(name, "artifact")
	require.NoError(t, err)

	return a
}

// setupModel creates folder/movies.xsd with a schema referencing refs and
// returns its model node
func setupModel(t *testing.T, root *repository.Node, folder string, refs ...string) *repository.Node {
	artifact := addArtifact(t, root, folder, "movies.xsd")

	schema, err := artifact.AddNode("schema", testSchemaType)
	require.NoError(t, err)

	el, err := schema.AddNode("Movie", "xs:element")
	require.NoError(t, err)
	el.SetString("ncName", "Movie")

	for _, r := range refs {
		imp, err := schema.AddNode("xs:import", "xs:import")
		require.NoError(t, err)
		imp.SetString("schemaLocation", r)
	}

	model, err := artifact.AddNode(testModelType, "model")
	require.NoError(t, err)

	return model
}

func TestProcessRecordsSiblingImport(t *testing.T) {
	root := repository.NewRoot()
	addArtifact(t, root, "movies", "MovieDatatypes.xsd")
	model := setupModel(t, root, "movies", "MovieDatatypes.xsd")

	p, err := newTestProcessor().Process(context.Background(), model)
	require.NoError(t, err)
	require.Equal(t, "/movies/movies.xsd/xsd.XsdModel/dependencies", p)

	recs := Records(model)
	require.Len(t, recs, 1)
	require.Equal(t, "MovieDatatypes.xsd", recs[0].SourceReference)
	require.Equal(t, "MovieDatatypes.xsd", recs[0].Path)
	require.Equal(t, "/movies/MovieDatatypes.xsd", recs[0].Target)
	require.False(t, recs[0].Missing)
}

func TestProcessSkipsNamespaceOnlyImports(t *testing.T) {
	root := repository.NewRoot()
	addArtifact(t, root, "movies", "MovieDatatypes.xsd")
	model := setupModel(t, root, "movies", "MovieDatatypes.xsd", " ")

	schema, ok := model.Parent().Child("schema")
	require.True(t, ok)
	imp, err := schema.AddNode("xs:import", "xs:import")
	require.NoError(t, err)
	imp.SetString("namespace", "http://www.w3.org/XML/1998/namespace")

	var missing []string
	h := func(ctx context.Context, m *repository.Node, paths []string) error {
		missing = paths
		return nil
	}

	_, err = newTestProcessor(WithMissingHandler(h)).Process(context.Background(), model)
	require.NoError(t, err)
	require.Empty(t, missing)

	recs := Records(model)
	require.Len(t, recs, 1)
	require.Equal(t, "/movies/MovieDatatypes.xsd", recs[0].Target)

	// a schema with only namespace imports has no dependencies
	other := repository.NewRoot()
	model = setupModel(t, other, "movies", "")

	p, err := newTestProcessor().Process(context.Background(), model)
	require.NoError(t, err)
	require.Empty(t, p)
	require.False(t, model.HasNode(NodeDependencies))
}

func TestProcessReturnsNoneWithoutReferences(t *testing.T) {
	root := repository.NewRoot()
	model := setupModel(t, root, "movies")

	p, err := newTestProcessor().Process(context.Background(), model)
	require.NoError(t, err)
	require.Empty(t, p)
	require.False(t, model.HasNode(NodeDependencies))
}

func TestProcessReturnsNoneForEmptySchema(t *testing.T) {
	root := repository.NewRoot()
	artifact := addArtifact(t, root, "movies", "empty.xsd")
	artifact.AddNode("schema", testSchemaType)
	model, _ := artifact.AddNode(testModelType, "model")

	p, err := newTestProcessor().Process(context.Background(), model)
	require.NoError(t, err)
	require.Empty(t, p)
	require.False(t, model.HasNode(NodeDependencies))
}

func TestProcessReplacesPreviousDependencies(t *testing.T) {
	root := repository.NewRoot()
	model := setupModel(t, root, "movies", "a.xsd", "b.xsd")

	_, err := newTestProcessor().Process(context.Background(), model)
	require.NoError(t, err)

	_, err = newTestProcessor().Process(context.Background(), model)
	require.NoError(t, err)

	require.Len(t, model.ChildrenNamed(NodeDependencies), 1)
	require.Len(t, Records(model), 2)
}

func TestProcessKeepsDocumentOrderAndMarksMissing(t *testing.T) {
	root := repository.NewRoot()
	addArtifact(t, root, "movies", "b.xsd")
	model := setupModel(t, root, "movies", "./a.xsd", "sub/../b.xsd")

	_, err := newTestProcessor().Process(context.Background(), model)
	require.NoError(t, err)

	recs := Records(model)
	require.Len(t, recs, 2)

	require.Equal(t, "./a.xsd", recs[0].SourceReference)
	require.Equal(t, "a.xsd", recs[0].Path)
	require.True(t, recs[0].Missing)

	require.Equal(t, "sub/../b.xsd", recs[1].SourceReference)
	require.Equal(t, "b.xsd", recs[1].Path)
	require.False(t, recs[1].Missing)
}

func TestProcessReturnsTypeMismatchForOtherModels(t *testing.T) {
	root := repository.NewRoot()
	artifact := addArtifact(t, root, "movies", "movies.wsdl")
	model, _ := artifact.AddNode("wsdl.WsdlModel", "model")

	_, err := newTestProcessor().Process(context.Background(), model)
	require.ErrorIs(t, err, errors.ErrTypeMismatch)
}

func TestProcessReturnsNotFoundWithoutSchema(t *testing.T) {
	root := repository.NewRoot()
	artifact := addArtifact(t, root, "movies", "movies.xsd")
	model, _ := artifact.AddNode(testModelType, "model")

	_, err := newTestProcessor().Process(context.Background(), model)
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestProcessFailsWhenReferenceLeavesRoot(t *testing.T) {
	root := repository.NewRoot()
	model := setupModel(t, root, "a", "../../x.xsd")

	_, err := newTestProcessor().Process(context.Background(), model)
	require.ErrorIs(t, err, errors.ErrInvalidPath)

	// no partial dependencies container
	require.False(t, model.HasNode(NodeDependencies))
}

func TestProcessResolvesParentReferencesBelowRoot(t *testing.T) {
	root := repository.NewRoot()
	addArtifact(t, root, "", "x.xsd")
	model := setupModel(t, root, "a/b", "../../x.xsd")

	_, err := newTestProcessor().Process(context.Background(), model)
	require.NoError(t, err)

	recs := Records(model)
	require.Len(t, recs, 1)
	require.Equal(t, "x.xsd", recs[0].Path)
	require.Equal(t, "/x.xsd", recs[0].Target)
	require.False(t, recs[0].Missing)
}

func TestProcessResolvesAbsoluteReferencesFromRoot(t *testing.T) {
	root := repository.NewRoot()
	addArtifact(t, root, "schemas", "common.xsd")
	model := setupModel(t, root, "movies", "/schemas/common.xsd", "http://www.w3.org/2001/xml.xsd")

	_, err := newTestProcessor().Process(context.Background(), model)
	require.NoError(t, err)

	recs := Records(model)
	require.Len(t, recs, 2)

	require.Equal(t, "/schemas/common.xsd", recs[0].Path)
	require.False(t, recs[0].Missing)

	require.Equal(t, "http://www.w3.org/2001/xml.xsd", recs[1].SourceReference)
	require.Equal(t, "/2001/xml.xsd", recs[1].Path)
	require.True(t, recs[1].Missing)
}

func TestProcessUsesConfiguredAbsoluteStrategy(t *testing.T) {
	root := repository.NewRoot()
	model := setupModel(t, root, "movies", "http://www.w3.org/2001/xml.xsd")

	strategy := func(from *repository.Node, ref *url.URL) (Resolution, error) {
		return Resolution{Path: ref.Host + ref.Path, Target: "/external/xml.xsd", Exists: true}, nil
	}

	_, err := newTestProcessor(WithAbsoluteStrategy(strategy)).Process(context.Background(), model)
	require.NoError(t, err)

	recs := Records(model)
	require.Equal(t, "www.w3.org/2001/xml.xsd", recs[0].Path)
	require.False(t, recs[0].Missing)
}

func TestProcessCallsMissingHandler(t *testing.T) {
	root := repository.NewRoot()
	model := setupModel(t, root, "movies", "a.xsd", "b.xsd")

	var missing []string
	h := func(ctx context.Context, m *repository.Node, paths []string) error {
		missing = paths
		return nil
	}

	_, err := newTestProcessor(WithMissingHandler(h)).Process(context.Background(), model)
	require.NoError(t, err)
	require.Equal(t, []string{"/movies/a.xsd", "/movies/b.xsd"}, missing)
}

func TestProcessWrapsMissingHandlerFailures(t *testing.T) {
	root := repository.NewRoot()
	model := setupModel(t, root, "movies", "a.xsd")

	h := func(ctx context.Context, m *repository.Node, paths []string) error {
		return fmt.Errorf("import failed")
	}

	_, err := newTestProcessor(WithMissingHandler(h)).Process(context.Background(), model)
	require.ErrorIs(t, err, errors.ErrProcessing)
	require.False(t, model.HasNode(NodeDependencies))
}

func TestProcessRecoversFromPanickingStrategies(t *testing.T) {
	root := repository.NewRoot()
	model := setupModel(t, root, "movies", "a.xsd")

	strategy := func(from *repository.Node, ref *url.URL) (Resolution, error) {
		panic("boom")
	}

	_, err := newTestProcessor(WithRelativeStrategy(strategy)).Process(context.Background(), model)
	require.ErrorIs(t, err, errors.ErrProcessing)
	require.False(t, model.HasNode(NodeDependencies))
}

func TestNormalizeCollapsesDotSegments(t *testing.T) {
	tt := map[string]string{
		"MovieDatatypes.xsd":     "MovieDatatypes.xsd",
		"./a.xsd":                "a.xsd",
		"a/./b/../c.xsd":         "a/c.xsd",
		"../../x.xsd":            "../../x.xsd",
		"a/../../x.xsd":          "../x.xsd",
		"/a/../../x.xsd":         "/x.xsd",
		"http://host/a/../b.xsd": "http://host/b.xsd",
	}

	for in, expected := range tt {
		u, err := Normalize(in)
		require.NoError(t, err)
		require.Equal(t, expected, u.String(), in)
	}
}

func TestNormalizeProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		segs := rapid.SliceOf(rapid.SampledFrom([]string{".", "..", "a", "b", "c.xsd"})).Draw(t, "segments")
		ref := strings.Join(segs, "/")
		if rapid.Bool().Draw(t, "absolute") {
			ref = "/" + ref
		}

		u, err := Normalize(ref)
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}

		leading := true
		for _, s := range strings.Split(strings.Trim(u.Path, "/"), "/") {
			if s == "." {
				t.Fatalf("%q normalized to %q keeps a . segment", ref, u.Path)
			}

			if s == ".." && !leading {
				t.Fatalf("%q normalized to %q keeps an inner .. segment", ref, u.Path)
			}

			leading = leading && s == ".."
		}

		again, _ := Normalize(u.String())
		if again.Path != u.Path {
			t.Fatalf("normalize is not idempotent: %q -> %q -> %q", ref, u.Path, again.Path)
		}
	})
}
