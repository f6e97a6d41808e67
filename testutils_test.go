package modeltypes

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jumppad-labs/modeltypes/errors"
	"github.com/jumppad-labs/modeltypes/logger"
	"github.com/jumppad-labs/modeltypes/plugins"
	"github.com/jumppad-labs/modeltypes/repository"
	"github.com/jumppad-labs/modeltypes/sequencers/xsd"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testRepoA = "https://repo-a.example.com/modeshape/"
	testRepoB = "https://repo-b.example.com/modeshape"
)

type zipEntry struct {
	name string
	data []byte
}

func buildZip(t require.TestingT, entries ...zipEntry) []byte {
	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)

	for _, e := range entries {
		f, err := w.Create(e.name)
		require.NoError(t, err)

		_, err = f.Write(e.data)
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())

	return buf.Bytes()
}

func classFile(class, descriptor string) zipEntry {
	return zipEntry{name: ClassEntry(class), data: []byte(descriptor)}
}

func nestedUnit(name string, data []byte) zipEntry {
	return zipEntry{name: "lib/" + name, data: data}
}

func writeZip(t require.TestingT, dir, name string, entries ...zipEntry) string {
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, buildZip(t, entries...), 0644))

	return p
}

// archiveFixtures returns the archives served by the fake repositories keyed
// by category
func archiveFixtures(t require.TestingT) map[string][]byte {
	xsdUnit := buildZip(t,
		classFile(xsd.ClassName, xsd.ClassDescriptor),
		classFile("org.modeshape.sequencer.xsd.XsdSequencer$1", ``),
		classFile("org.modeshape.sequencer.xsd.XsdReader", `requires = ["org.modeshape.common.util.StringUtil"]`),
	)

	commonUnit := buildZip(t,
		classFile("org.modeshape.common.util.StringUtil", ``),
		classFile("org.modeshape.common.CommonSequencer", `factory = "xsd"`),
	)

	srampUnit := buildZip(t,
		classFile("org.modeshape.sequencer.sramp.AbstractResolvingSequencer", `
abstract   = true
implements = [api.sequencer]
`),
	)

	wsdlUnit := buildZip(t,
		classFile("org.modeshape.sequencer.wsdl.WsdlSequencer", `
factory    = "wsdl"
extends    = "org.modeshape.sequencer.sramp.AbstractResolvingSequencer"
extensions = ["wsdl"]
`),
	)

	ddlUnit := buildZip(t,
		classFile("org.modeshape.sequencer.ddl.DdlSequencer", `
factory    = "ddl"
implements = [api.sequencer]
`),
	)

	return map[string][]byte{
		// archive of units, the tests and sources units are never staged
		"xsd": buildZip(t,
			zipEntry{name: "README.txt", data: []byte("xsd sequencer")},
			nestedUnit("modeshape-sequencer-xsd-3.8.1.Final.jar", xsdUnit),
			nestedUnit("modeshape-common-3.8.1.Final.jar", commonUnit),
			nestedUnit("modeshape-sequencer-xsd-3.8.1.Final-tests.jar", xsdUnit),
			nestedUnit("modeshape-sequencer-xsd-3.8.1.Final-sources.jar", xsdUnit),
		),
		// single unit archive
		"text": buildZip(t,
			classFile("org.modeshape.sequencer.text.AbstractTextSequencer", `
abstract   = true
implements = [api.sequencer]
extensions = ["txt"]
`),
			classFile("org.modeshape.sequencer.text.TextSequencer", `
factory = "text"
extends = "org.modeshape.sequencer.text.AbstractTextSequencer"
`),
			classFile("org.modeshape.sequencer.text.TextReader", ``),
		),
		"sramp": buildZip(t, nestedUnit("modeshape-sequencer-sramp-3.8.1.Final.jar", srampUnit)),
		"wsdl":  buildZip(t, nestedUnit("modeshape-sequencer-wsdl-3.8.1.Final.jar", wsdlUnit)),
		"ddl":   buildZip(t, nestedUnit("modeshape-sequencer-ddl-3.8.1.Final.jar", ddlUnit)),
	}
}

func testArchiveURL(repoURL, category string) string {
	return fmt.Sprintf(
		"%s/modeshape-sequencer-%s/%s/modeshape-sequencer-%s-%s%s",
		strings.TrimSuffix(repoURL, "/"), category, DefaultVersion, category, DefaultVersion, DefaultArchiveSuffix,
	)
}

// mockGetter serves archives from memory
type mockGetter struct {
	mock.Mock

	mu       sync.Mutex
	archives map[string][]byte
}

func newMockGetter() *mockGetter {
	g := &mockGetter{archives: map[string][]byte{}}
	g.On("Fetch", mock.Anything).Return()

	return g
}

// serve makes the archive of every category in fixtures available at repoURL
func (g *mockGetter) serve(repoURL string, fixtures map[string][]byte, categories ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, c := range categories {
		g.archives[testArchiveURL(repoURL, c)] = fixtures[c]
	}
}

func (g *mockGetter) Fetch(ctx context.Context, src, dest string, ignoreCache bool) (string, error) {
	g.Called(src)

	g.mu.Lock()
	data, ok := g.archives[src]
	g.mu.Unlock()

	if !ok {
		return "", errors.TransientIO("fetch", fmt.Errorf("404 Not Found"), "unable to fetch %s", src)
	}

	if err := os.MkdirAll(dest, os.ModePerm); err != nil {
		return "", err
	}

	p := filepath.Join(dest, strings.NewReplacer("/", "_", ":", "_").Replace(src))

	return p, os.WriteFile(p, data, 0644)
}

type mockLister struct {
	mock.Mock
}

func (l *mockLister) Categories(ctx context.Context, repoURL string) ([]string, error) {
	args := l.Called(repoURL)

	if cats, ok := args.Get(0).([]string); ok {
		return cats, args.Error(1)
	}

	return nil, args.Error(1)
}

type fakeSequencer struct {
	contentTypes []string
	extensions   []string
	initErr      error
	panics       bool
	execPanics   bool
	execErr      error

	mu     sync.Mutex
	config *plugins.Config
}

func (f *fakeSequencer) Initialize(cfg plugins.Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.config = &cfg

	return f.initErr
}

func (f *fakeSequencer) Accepts(contentType string) bool {
	if f.panics {
		panic("accepts is broken")
	}

	for _, c := range f.contentTypes {
		if c == contentType {
			return true
		}
	}

	return false
}

func (f *fakeSequencer) SourceExtensions() []string {
	return f.extensions
}

func (f *fakeSequencer) Execute(ctx context.Context, content []byte, target *repository.Node, sc plugins.Context) error {
	n, err := target.AddNode("document", "text:document")
	if err != nil {
		return err
	}

	n.SetString("content", string(content))

	if f.execPanics {
		panic("execute is broken")
	}

	return f.execErr
}

type testEnv struct {
	store   repository.Store
	catalog *plugins.Catalog
	getter  *mockGetter
	lister  *mockLister
	options *Options
	log     logger.Logger

	fixtures map[string][]byte
	text     *fakeSequencer
	wsdl     *fakeSequencer
}

// setupEnv creates the collaborators of a registry, the archives of every
// fixture category are served from testRepoB, testRepoA serves nothing
func setupEnv(t require.TestingT, dir string, l logger.Logger) *testEnv {
	o := DefaultOptions()
	o.StagingDir = filepath.Join(dir, "staging")
	o.Repositories = []string{testRepoA, testRepoB}
	o.Logger = l

	e := &testEnv{
		store:    repository.NewMemoryStore(),
		getter:   newMockGetter(),
		lister:   &mockLister{},
		options:  o,
		log:      l,
		fixtures: archiveFixtures(t),
		text:     &fakeSequencer{contentTypes: []string{"text/plain"}},
		wsdl:     &fakeSequencer{contentTypes: []string{"application/xml"}},
	}

	e.getter.serve(testRepoB, e.fixtures, "xsd", "text", "sramp", "wsdl", "ddl")
	e.catalog = e.newCatalog(t)

	return e
}

func (e *testEnv) newCatalog(t require.TestingT) *plugins.Catalog {
	c := plugins.NewCatalog()
	require.NoError(t, xsd.Register(c))
	require.NoError(t, c.Register("text", func() plugins.Sequencer { return e.text }))
	require.NoError(t, c.Register("wsdl", func() plugins.Sequencer { return e.wsdl }))

	return c
}

func (e *testEnv) newRepository(t require.TestingT) *repository.Repository {
	repo, err := repository.New(e.store, repository.WithVersion(DefaultVersion), repository.WithLogger(e.log))
	require.NoError(t, err)

	return repo
}

func (e *testEnv) newRegistry(t require.TestingT, repo *repository.Repository) *Registry {
	r, err := NewRegistry(context.Background(), repo, e.catalog, e.options, WithGetter(e.getter), WithLister(e.lister))
	require.NoError(t, err)

	return r
}

func setupRegistry(t require.TestingT, dir string, l logger.Logger) (*Registry, *testEnv) {
	e := setupEnv(t, dir, l)

	return e.newRegistry(t, e.newRepository(t)), e
}
