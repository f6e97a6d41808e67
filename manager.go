package modeltypes

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jumppad-labs/modeltypes/dependency"
	"github.com/jumppad-labs/modeltypes/errors"
	"github.com/jumppad-labs/modeltypes/logger"
	"github.com/jumppad-labs/modeltypes/plugins"
	"github.com/jumppad-labs/modeltypes/repository"
	"github.com/jumppad-labs/modeltypes/sequencers/xsd"
)

const (
	PrimaryTypeFolder   = "folder"
	PrimaryTypeArtifact = "artifact"
	PrimaryTypeModel    = "model"

	// PropMimeType is the declared content type of an artifact
	PropMimeType = "mimeType"
	// PropData is the binary content of an artifact
	PropData = "data"
	// PropModelType is the name of the model type that generated a model
	PropModelType = "modelType"
	// PropOutputs lists the artifact children a model type generated
	PropOutputs     = "outputs"
	PropGeneratedAt = "generatedAt"
)

// NodeTypes returns the primary types the manager writes, they are passed to
// every plugin on initialization
func NodeTypes() []string {
	return []string{
		PrimaryTypeFolder,
		PrimaryTypeArtifact,
		PrimaryTypeModel,
		PrimaryTypeManager,
		dependency.PrimaryTypeDependencies,
		dependency.PrimaryTypeDependency,
	}
}

// ProcessorFactory creates the dependency processor for a model type
type ProcessorFactory func(modelType string) dependency.Processor

// Manager orchestrates repository sessions around the Registry
type Manager struct {
	repo     *repository.Repository
	registry *Registry
	log      logger.Logger
	now      func() time.Time

	mu         sync.RWMutex
	processors map[string]ProcessorFactory
}

// NewManager creates a Manager, processors are registered by plugin class name
func NewManager(repo *repository.Repository, registry *Registry, l logger.Logger) *Manager {
	if l == nil {
		l = logger.Nop()
	}

	return &Manager{
		repo:       repo,
		registry:   registry,
		log:        l.With("component", "manager"),
		now:        time.Now,
		processors: map[string]ProcessorFactory{},
	}
}

// Open creates the repository below o.StateDir and a Manager with the built in
// model types registered
func Open(ctx context.Context, o *Options, opts ...RegistryOption) (*Manager, error) {
	if o == nil {
		o = DefaultOptions()
	}

	if o.Logger == nil {
		o.Logger = logger.Nop()
	}

	if err := os.MkdirAll(o.StagingDir, os.ModePerm); err != nil {
		return nil, errors.TransientIO("open", err, "unable to create staging folder %s", o.StagingDir)
	}

	repo, err := repository.New(
		repository.NewFileStore(o.StateDir),
		repository.WithVersion(o.Version),
		repository.WithLogger(o.Logger),
	)
	if err != nil {
		return nil, err
	}

	catalog := plugins.NewCatalog()
	if err := xsd.Register(catalog); err != nil {
		return nil, errors.Wrap("open", err)
	}

	registry, err := NewRegistry(ctx, repo, catalog, o, opts...)
	if err != nil {
		return nil, err
	}

	m := NewManager(repo, registry, o.Logger)
	m.RegisterProcessor(xsd.ClassName, func(modelType string) dependency.Processor {
		return xsd.NewDependencyProcessor(modelType, dependency.WithLogger(o.Logger))
	})

	return m, nil
}

// Registry returns the model type registry
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Repository returns the repository the manager works on
func (m *Manager) Repository() *repository.Repository {
	return m.repo
}

// RegisterProcessor sets the dependency processor factory used for models
// generated by plugins of className
func (m *Manager) RegisterProcessor(className string, f ProcessorFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.processors[className] = f
}

func (m *Manager) processor(mt *ModelType) dependency.Processor {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.processors[mt.ClassName]
	if !ok {
		return nil
	}

	return f(mt.Name)
}

// Upload stores data as the artifact folder/name, missing folders are
// created and an existing artifact is overwritten
func (m *Manager) Upload(ctx context.Context, folder, name, contentType string, data []byte) (string, error) {
	op := "upload"

	if !strings.HasPrefix(folder, "/") {
		return "", errors.InvalidArgument(op, "folder %q is not an absolute path", folder)
	}

	if strings.TrimSpace(name) == "" {
		return "", errors.InvalidArgument(op, "artifact name is required")
	}

	var p string

	err := m.repo.Update(ctx, func(s *repository.Session) error {
		f, err := s.CreatePath(folder, PrimaryTypeFolder)
		if err != nil {
			return err
		}

		a, ok := f.Child(name)
		if !ok {
			if a, err = f.AddNode(name, PrimaryTypeArtifact); err != nil {
				return err
			}
		} else if a.PrimaryType != PrimaryTypeArtifact {
			return errors.InvalidArgument(op, "%s exists and is not an artifact", a.Path())
		}

		a.SetString(PropMimeType, contentType)
		a.SetBinary(PropData, data)
		p = a.Path()

		return nil
	})
	if err != nil {
		return "", errors.Wrap(op, err)
	}

	m.log.Info("uploaded artifact", "path", p, "content_type", contentType, "size", len(data))

	return p, nil
}

// GenerateModel runs the named model type, or the default model type when
// modelTypeName is empty, against the artifact and stores the model next to
// the generated output. Everything is committed in a single session.
func (m *Manager) GenerateModel(ctx context.Context, artifactPath, modelTypeName string) (string, error) {
	op := "generate model"

	mt, err := m.modelTypeFor(ctx, artifactPath, modelTypeName)
	if err != nil {
		return "", err
	}

	var modelPath string

	err = m.repo.Update(ctx, func(s *repository.Session) error {
		artifact, err := s.Node(artifactPath)
		if err != nil {
			return err
		}

		removeModel(artifact, mt.Name)

		before := map[*repository.Node]bool{}
		for _, c := range artifact.Children {
			before[c] = true
		}

		if err := execute(ctx, mt, artifact, plugins.NewContext(m.now())); err != nil {
			return err
		}

		outputs := []string{}
		for _, c := range artifact.Children {
			if !before[c] {
				outputs = append(outputs, c.Name)
			}
		}

		model, err := artifact.AddNode(mt.Name, PrimaryTypeModel)
		if err != nil {
			return err
		}

		model.SetString(PropModelType, mt.Name)
		model.SetStrings(PropOutputs, outputs)
		model.SetLong(PropGeneratedAt, m.now().UnixMilli())

		if p := m.processor(mt); p != nil {
			deps, err := p.Process(ctx, model)
			if err != nil {
				return err
			}

			if deps != "" {
				m.log.Debug("recorded dependencies", "model", model.Path(), "records", len(dependency.Records(model)))
			}
		}

		modelPath = model.Path()

		return nil
	})
	if err != nil {
		return "", errors.Wrap(op, err)
	}

	m.log.Info("generated model", "artifact", artifactPath, "model_type", mt.Name, "model", modelPath)

	return modelPath, nil
}

func (m *Manager) modelTypeFor(ctx context.Context, artifactPath, modelTypeName string) (*ModelType, error) {
	op := "generate model"

	if modelTypeName == "" {
		mt, err := m.registry.DefaultModelType(ctx, artifactPath)
		if err != nil {
			return nil, err
		}

		if mt == nil {
			return nil, errors.NotFound(op, "no installed model type applies to %s", artifactPath)
		}

		return mt, nil
	}

	mt, ok := m.registry.ModelType(modelTypeName)
	if !ok {
		return nil, errors.InvalidArgument(op, "unknown model type %s", modelTypeName)
	}

	applicable, err := m.registry.ModelTypesForArtifact(ctx, artifactPath)
	if err != nil {
		return nil, err
	}

	for _, a := range applicable {
		if a == mt {
			return mt, nil
		}
	}

	return nil, errors.InvalidArgument(op, "model type %s does not apply to %s", modelTypeName, artifactPath)
}

// execute runs the plugin, a panicking plugin fails the generation
func execute(ctx context.Context, mt *ModelType, artifact *repository.Node, sc plugins.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model type %s panicked: %v", mt.Name, r)
		}
	}()

	if err := mt.Sequencer().Execute(ctx, artifact.Binary(PropData), artifact, sc); err != nil {
		return fmt.Errorf("model type %s failed: %w", mt.Name, err)
	}

	return nil
}

// removeModel removes a previously generated model and its outputs
func removeModel(artifact *repository.Node, modelType string) {
	for _, model := range artifact.ChildrenNamed(modelType) {
		if model.PrimaryType != PrimaryTypeModel {
			continue
		}

		for _, o := range model.Strings(PropOutputs) {
			for _, out := range artifact.ChildrenNamed(o) {
				if out.PrimaryType != PrimaryTypeModel {
					out.Remove()
				}
			}
		}

		model.Remove()
	}
}

// Dependencies returns the dependency records of the model at modelPath
func (m *Manager) Dependencies(ctx context.Context, modelPath string) ([]dependency.Record, error) {
	op := "dependencies"

	if strings.TrimSpace(modelPath) == "" {
		return nil, errors.InvalidArgument(op, "model path is required")
	}

	var recs []dependency.Record

	err := m.repo.View(ctx, func(s *repository.Session) error {
		n, err := s.Node(modelPath)
		if err != nil {
			return err
		}

		if n.PrimaryType != PrimaryTypeModel {
			return errors.TypeMismatch(op, "%s is not a model", modelPath)
		}

		recs = dependency.Records(n)

		return nil
	})
	if err != nil {
		return nil, errors.Wrap(op, err)
	}

	return recs, nil
}

// WalkArtifacts calls fn for every modelled artifact after the artifacts it
// depends on. fn may be called concurrently for independent artifacts.
func (m *Manager) WalkArtifacts(ctx context.Context, fn func(artifactPath string) error) error {
	var g *dependency.Graph

	err := m.repo.View(ctx, func(s *repository.Session) error {
		g = dependency.BuildGraph(s.Root(), isModelledArtifact)
		return nil
	})
	if err != nil {
		return err
	}

	return g.Walk(func(a string) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		return fn(a)
	})
}

func isModelledArtifact(n *repository.Node) bool {
	return n.PrimaryType == PrimaryTypeArtifact && len(n.ChildrenOfType(PrimaryTypeModel)) > 0
}
