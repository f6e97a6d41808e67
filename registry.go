package modeltypes

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/infinytum/raymond/v2"
	"github.com/jumppad-labs/modeltypes/errors"
	"github.com/jumppad-labs/modeltypes/listing"
	"github.com/jumppad-labs/modeltypes/logger"
	"github.com/jumppad-labs/modeltypes/plugins"
	"github.com/jumppad-labs/modeltypes/repository"
	"golang.org/x/sync/singleflight"
)

// ModelType is an installed plugin bound to a loaded class
type ModelType struct {
	// Name is the category qualified name, i.e. xsd.XsdModel
	Name      string
	Category  string
	ClassName string
	// Extensions are the source file extensions the plugin prefers
	Extensions []string

	sequencer plugins.Sequencer
}

// Sequencer returns the plugin instance
func (m *ModelType) Sequencer() plugins.Sequencer {
	return m.sequencer
}

// Accepts invokes the plugin's content type predicate
func (m *ModelType) Accepts(contentType string) bool {
	return m.sequencer.Accepts(contentType)
}

// HasExtension returns true when ext, with or without the leading dot, is a
// preferred source extension
func (m *ModelType) HasExtension(ext string) bool {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return false
	}

	for _, e := range m.Extensions {
		if strings.EqualFold(strings.TrimPrefix(e, "."), ext) {
			return true
		}
	}

	return false
}

// ModelTypeName derives the model type name from a plugin class name,
// org.modeshape.sequencer.xsd.XsdSequencer in category xsd becomes xsd.XsdModel
func ModelTypeName(category, className string) string {
	simple := className[strings.LastIndex(className, ".")+1:]
	if strings.HasSuffix(simple, "Sequencer") {
		simple = strings.TrimSuffix(simple, "Sequencer") + "Model"
	}

	return category + "." + simple
}

// CandidateState is the outcome of an attempt to bind a candidate class
type CandidateState int

const (
	// StatePending candidates are retried on the next install
	StatePending CandidateState = iota
	// StateBound candidates became model types
	StateBound
	// StateRejected candidates are not plugins and are dropped
	StateRejected
)

func (s CandidateState) String() string {
	switch s {
	case StateBound:
		return "bound"
	case StateRejected:
		return "rejected"
	}

	return "pending"
}

type resolution struct {
	State     CandidateState
	ModelType *ModelType
	Reason    error
}

type candidate struct {
	Category string
	Class    string
}

func (c candidate) String() string {
	return c.Category + ":" + c.Class
}

func parseCandidate(s string) candidate {
	cat, class, ok := strings.Cut(s, ":")
	if !ok {
		return candidate{Class: s}
	}

	return candidate{Category: cat, Class: class}
}

// RegistryOption customises the collaborators of a Registry
type RegistryOption func(r *Registry)

// WithGetter replaces the default go-getter based fetcher
func WithGetter(g Getter) RegistryOption {
	return func(r *Registry) {
		r.getter = g
	}
}

// WithLister replaces the default repository listing client
func WithLister(l listing.Lister) RegistryOption {
	return func(r *Registry) {
		r.lister = l
	}
}

// Registry is the model type manager. It owns the registered repositories,
// the installed archives, the bound model types and the pending candidates
// and keeps all of them persisted in the repository.
type Registry struct {
	repo      *repository.Repository
	catalog   *plugins.Catalog
	getter    Getter
	lister    listing.Lister
	extractor *Extractor
	loader    *ClassLoader
	options   *Options
	urlTmpl   *raymond.Template
	downloads string
	log       logger.Logger

	installs singleflight.Group
	// mu serialises every read-modify-commit of the persisted state
	mu sync.Mutex

	stateMu      sync.RWMutex
	repositories []string
	installed    map[string]bool
	pending      []candidate
	modelTypes   []*ModelType
	bound        map[string]bool
}

// NewRegistry creates a registry on repo, restoring any persisted state. The
// first time a registry is created against a repository the default
// repositories are seeded.
func NewRegistry(ctx context.Context, repo *repository.Repository, catalog *plugins.Catalog, o *Options, opts ...RegistryOption) (*Registry, error) {
	if o == nil {
		o = DefaultOptions()
	}

	l := o.Logger
	if l == nil {
		l = logger.Nop()
	}

	if catalog == nil {
		catalog = plugins.NewCatalog()
	}

	ex, err := NewExtractor(o)
	if err != nil {
		return nil, err
	}

	tmpl, err := raymond.Parse(o.ArchiveURLTemplate)
	if err != nil {
		return nil, errors.InvalidArgument("registry", "invalid archive url template: %s", err)
	}

	r := &Registry{
		repo:      repo,
		catalog:   catalog,
		getter:    NewGoGetter(o.FetchTimeout),
		lister:    listing.New("", o.FetchTimeout),
		extractor: ex,
		loader:    NewClassLoader(catalog),
		options:   o,
		urlTmpl:   tmpl,
		downloads: filepath.Join(o.StagingDir, "archives"),
		log:       l.With("component", "registry"),
		installed: map[string]bool{},
		bound:     map[string]bool{},
	}

	for _, opt := range opts {
		opt(r)
	}

	if err := r.loadState(ctx); err != nil {
		return nil, err
	}

	return r, nil
}

// Repositories returns the registered repository urls in search order
func (r *Registry) Repositories() []string {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()

	return append([]string{}, r.repositories...)
}

// RegisterRepository adds repoURL in front of the search order, registering
// a known url does nothing
func (r *Registry) RegisterRepository(ctx context.Context, repoURL string) ([]string, error) {
	op := "register repository"

	if err := validateRepositoryURL(op, repoURL); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.Repositories()
	for _, u := range current {
		if u == repoURL {
			return current, nil
		}
	}

	updated := append([]string{repoURL}, current...)

	err := r.commit(ctx, op,
		func(n *repository.Node) error {
			n.SetStrings(propRepositories, updated)
			return nil
		},
		func() { r.repositories = updated },
	)
	if err != nil {
		return nil, err
	}

	r.log.Info("registered repository", "url", repoURL)

	return r.Repositories(), nil
}

// UnregisterRepository removes repoURL, unknown urls are ignored
func (r *Registry) UnregisterRepository(ctx context.Context, repoURL string) ([]string, error) {
	op := "unregister repository"

	if strings.TrimSpace(repoURL) == "" {
		return nil, errors.InvalidArgument(op, "repository url is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.Repositories()
	updated := []string{}
	for _, u := range current {
		if u != repoURL {
			updated = append(updated, u)
		}
	}

	if len(updated) == len(current) {
		return current, nil
	}

	err := r.commit(ctx, op,
		func(n *repository.Node) error {
			n.SetStrings(propRepositories, updated)
			return nil
		},
		func() { r.repositories = updated },
	)
	if err != nil {
		return nil, err
	}

	r.log.Info("unregistered repository", "url", repoURL)

	return r.Repositories(), nil
}

// ArchiveName returns the name of the archive that distributes category
func (r *Registry) ArchiveName(category string) string {
	return fmt.Sprintf("modeshape-sequencer-%s-%s%s", category, r.repo.Version(), r.options.ArchiveSuffix)
}

// Installed returns true when the archive for category has been installed
func (r *Registry) Installed(category string) bool {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()

	return r.installed[r.ArchiveName(category)]
}

// Install installs the archive for category from the first registered
// repository that serves it and tries to bind every pending candidate.
// Installing an installed category returns the pending candidates unchanged.
// Concurrent installs of the same category share a single installation.
func (r *Registry) Install(ctx context.Context, category string) ([]string, error) {
	if strings.TrimSpace(category) == "" {
		return nil, errors.InvalidArgument("install", "category is required")
	}

	v, err, _ := r.installs.Do(category, func() (any, error) {
		return r.install(ctx, category)
	})
	if err != nil {
		return nil, err
	}

	return append([]string{}, v.([]string)...), nil
}

func (r *Registry) install(ctx context.Context, category string) ([]string, error) {
	op := "install"
	archive := r.ArchiveName(category)
	log := r.log.With("category", category, "archive", archive)

	if r.Installed(category) {
		log.Debug("archive already installed")
		return r.Pending(), nil
	}

	local, err := r.fetch(ctx, category, archive, log)
	if err != nil {
		return nil, err
	}

	units, err := r.extractor.Extract(local)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.saveUnits(ctx, units); err != nil {
		return nil, err
	}

	working := r.pendingCandidates()
	known := map[string]bool{}
	for _, c := range working {
		known[c.Class] = true
	}

	for _, u := range units {
		if err := r.loader.AddUnit(u.Path); err != nil {
			return nil, err
		}

		for _, c := range u.Candidates {
			if known[c] || r.isBound(c) {
				continue
			}

			known[c] = true
			working = append(working, candidate{Category: category, Class: c})
		}
	}

	remaining, err := r.resolvePending(ctx, working, log)
	if err != nil {
		return nil, err
	}

	err = r.commit(ctx, op,
		func(n *repository.Node) error {
			n.SetStrings(propInstalledArchives, appendUnique(n.Strings(propInstalledArchives), archive))
			n.SetStrings(propPendingClasses, candidateStrings(remaining))
			return nil
		},
		func() {
			r.installed[archive] = true
			r.pending = remaining
		},
	)
	if err != nil {
		return nil, err
	}

	log.Info("installed archive", "units", len(units), "pending", len(remaining))

	return r.Pending(), nil
}

// fetch tries every repository in search order, a failing repository never
// aborts the install while others remain
func (r *Registry) fetch(ctx context.Context, category, archive string, log logger.Logger) (string, error) {
	op := "install"
	causes := []error{}

	for _, repoURL := range r.Repositories() {
		src, err := r.archiveURL(repoURL, category, archive)
		if err != nil {
			causes = append(causes, err)
			continue
		}

		log.Debug("fetching archive", "url", src)

		local, err := r.getter.Fetch(ctx, src, r.downloads, false)
		if err == nil {
			return local, nil
		}

		log.Warn("unable to fetch archive", "repository", repoURL, "error", err)
		causes = append(causes, err)

		if ctx.Err() != nil {
			return "", errors.TransientIO(op, ctx.Err(), "install of %s interrupted", category).WithCauses(causes...)
		}
	}

	return "", errors.NotFound(op, "category %s was not found in any registered repository", category).WithCauses(causes...)
}

func (r *Registry) archiveURL(repoURL, category, archive string) (string, error) {
	src, err := r.urlTmpl.Exec(map[string]string{
		"url":      strings.TrimSuffix(repoURL, "/"),
		"category": category,
		"version":  r.repo.Version(),
		"archive":  archive,
	})
	if err != nil {
		return "", errors.InvalidArgument("install", "unable to render archive url for %s: %s", repoURL, err)
	}

	return src, nil
}

// resolvePending attempts every candidate once and returns the ones that
// stay pending, each binding is committed on its own
func (r *Registry) resolvePending(ctx context.Context, working []candidate, log logger.Logger) ([]candidate, error) {
	remaining := []candidate{}

	for i, c := range working {
		if r.isBound(c.Class) {
			log.Debug("dropping candidate that is already bound", "class", c.Class)
			continue
		}

		res := r.bind(c)

		switch res.State {
		case StateBound:
			rest := append(append([]candidate{}, remaining...), working[i+1:]...)
			if err := r.saveBinding(ctx, res.ModelType, rest); err != nil {
				return nil, err
			}

			log.Info("bound model type", "model_type", res.ModelType.Name, "class", c.Class)

		case StateRejected:
			log.Info("rejected candidate", "class", c.Class, "reason", res.Reason)

		default:
			var mde *MissingDependencyError
			if errors.As(res.Reason, &mde) {
				log.Debug("deferred candidate", "class", c.Class, "missing", mde.Missing)
			} else {
				log.Warn("unable to bind candidate", "class", c.Class, "reason", res.Reason)
			}

			remaining = append(remaining, c)
		}
	}

	return remaining, nil
}

// bind loads the candidate class and turns it into a model type when it is
// a concrete implementation of the plugin capability
func (r *Registry) bind(c candidate) resolution {
	cls, err := r.loader.LoadClass(c.Class)
	if err != nil {
		return resolution{State: StatePending, Reason: err}
	}

	if !cls.Implements(plugins.SequencerInterface) || !cls.Concrete() {
		return resolution{
			State:  StateRejected,
			Reason: fmt.Errorf("%s is not a concrete implementation of %s", c.Class, plugins.SequencerInterface),
		}
	}

	factory := cls.Factory()
	if factory == "" {
		return resolution{State: StateRejected, Reason: fmt.Errorf("%s does not declare a factory", c.Class)}
	}

	f, ok := r.catalog.Factory(factory)
	if !ok {
		return resolution{State: StatePending, Reason: fmt.Errorf("factory %s is not provided by the host", factory)}
	}

	name := ModelTypeName(c.Category, c.Class)

	seq := f()
	if seq == nil {
		return resolution{State: StatePending, Reason: fmt.Errorf("factory %s returned no plugin", factory)}
	}

	err = seq.Initialize(plugins.Config{
		Logger:         r.log.With("model_type", name),
		RepositoryName: r.repo.Name(),
		Namespaces:     r.namespaces(),
		NodeTypes:      NodeTypes(),
	})
	if err != nil {
		return resolution{State: StatePending, Reason: fmt.Errorf("unable to initialize %s: %w", c.Class, err)}
	}

	exts := cls.Extensions()
	if ep, ok := seq.(plugins.ExtensionProvider); ok {
		exts = append(exts, ep.SourceExtensions()...)
	}

	return resolution{
		State: StateBound,
		ModelType: &ModelType{
			Name:       name,
			Category:   c.Category,
			ClassName:  c.Class,
			Extensions: exts,
			sequencer:  seq,
		},
	}
}

func (r *Registry) namespaces() map[string]string {
	ns := map[string]string{}
	for k, v := range r.options.Namespaces {
		ns[k] = v
	}

	return ns
}

// ModelTypes returns the bound model types ordered by name
func (r *Registry) ModelTypes() []*ModelType {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()

	return append([]*ModelType{}, r.modelTypes...)
}

// ModelTypesForCategory returns the model types installed by category
func (r *Registry) ModelTypesForCategory(category string) []*ModelType {
	mts := []*ModelType{}
	for _, mt := range r.ModelTypes() {
		if mt.Category == category {
			mts = append(mts, mt)
		}
	}

	return mts
}

// ModelType returns the model type with the given name
func (r *Registry) ModelType(name string) (*ModelType, bool) {
	for _, mt := range r.ModelTypes() {
		if mt.Name == name {
			return mt, true
		}
	}

	return nil, false
}

// ModelTypesForArtifact returns the model types accepting the content type
// declared by the artifact at artifactPath
func (r *Registry) ModelTypesForArtifact(ctx context.Context, artifactPath string) ([]*ModelType, error) {
	_, contentType, err := r.artifact(ctx, artifactPath)
	if err != nil {
		return nil, err
	}

	return Applicable(contentType, r.ModelTypes()), nil
}

// DefaultModelType returns the model type preferred for the artifact at
// artifactPath, nil when no model type applies
func (r *Registry) DefaultModelType(ctx context.Context, artifactPath string) (*ModelType, error) {
	name, contentType, err := r.artifact(ctx, artifactPath)
	if err != nil {
		return nil, err
	}

	return DefaultFor(name, Applicable(contentType, r.ModelTypes())), nil
}

func (r *Registry) artifact(ctx context.Context, artifactPath string) (string, string, error) {
	op := "resolve artifact"

	if strings.TrimSpace(artifactPath) == "" {
		return "", "", errors.InvalidArgument(op, "artifact path is required")
	}

	var name, contentType string

	err := r.repo.View(ctx, func(s *repository.Session) error {
		n, err := s.Node(artifactPath)
		if err != nil {
			return err
		}

		name = n.Name
		contentType = n.String(PropMimeType)

		return nil
	})

	switch errors.KindOf(err) {
	case errors.KindUnknown:
		if err != nil {
			return "", "", errors.Wrap(op, err)
		}
		return name, contentType, nil
	case errors.KindNotFound:
		return "", "", errors.NotFound(op, "artifact %s does not exist", artifactPath)
	}

	return "", "", err
}

// InstallableCategories returns the categories offered by every registered
// repository
func (r *Registry) InstallableCategories(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	cats := []string{}

	for _, u := range r.Repositories() {
		found, err := r.lister.Categories(ctx, u)
		if err != nil {
			return nil, err
		}

		for _, c := range found {
			if !seen[c] {
				seen[c] = true
				cats = append(cats, c)
			}
		}
	}

	sort.Strings(cats)

	return cats, nil
}

// Pending returns the class names of the candidates that could not be bound yet
func (r *Registry) Pending() []string {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()

	names := []string{}
	for _, c := range r.pending {
		names = append(names, c.Class)
	}

	return names
}

func (r *Registry) pendingCandidates() []candidate {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()

	return append([]candidate{}, r.pending...)
}

func (r *Registry) isBound(class string) bool {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()

	return r.bound[class]
}

// addModelType must be called with stateMu held
func (r *Registry) addModelType(mt *ModelType) {
	r.modelTypes = append(r.modelTypes, mt)
	r.bound[mt.ClassName] = true

	sort.SliceStable(r.modelTypes, func(i, j int) bool {
		return r.modelTypes[i].Name < r.modelTypes[j].Name
	})
}

func validateRepositoryURL(op, repoURL string) error {
	if strings.TrimSpace(repoURL) == "" {
		return errors.InvalidArgument(op, "repository url is required")
	}

	u, err := url.Parse(repoURL)
	if err != nil || u.Scheme == "" {
		return errors.InvalidArgument(op, "invalid repository url %q", repoURL)
	}

	return nil
}

func appendUnique(list []string, s string) []string {
	for _, l := range list {
		if l == s {
			return list
		}
	}

	return append(list, s)
}

func candidateStrings(cs []candidate) []string {
	ss := []string{}
	for _, c := range cs {
		ss = append(ss, c.String())
	}

	return ss
}
