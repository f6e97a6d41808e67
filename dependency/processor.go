package dependency

import (
	"context"
	"fmt"
	"strings"

	"github.com/jumppad-labs/modeltypes/errors"
	"github.com/jumppad-labs/modeltypes/logger"
	"github.com/jumppad-labs/modeltypes/repository"
)

const (
	NodeDependencies        = "dependencies"
	NodeDependency          = "dependency"
	PrimaryTypeDependencies = "dependencies"
	PrimaryTypeDependency   = "dependency"

	// PropSourceReference holds the reference exactly as written in the source
	PropSourceReference = "sourceReference"
	// PropPath holds the resolved path
	PropPath = "path"
	// PropTarget holds the absolute repository path of the referenced artifact
	PropTarget = "target"
	// PropMissing is true when the target did not exist at processing time
	PropMissing = "missing"
)

// Processor records the dependencies of a generated model. Process returns
// the path of the dependencies container or an empty string when the model
// has no dependencies.
type Processor interface {
	Process(ctx context.Context, model *repository.Node) (string, error)
}

// MissingHandler is invoked with the targets of unresolved references, it can
// import the missing artifacts
type MissingHandler func(ctx context.Context, model *repository.Node, missing []string) error

// Option configures a SchemaProcessor
type Option func(p *SchemaProcessor)

// WithRelativeStrategy replaces RelativeStrategy
func WithRelativeStrategy(s PathStrategy) Option {
	return func(p *SchemaProcessor) {
		p.relative = s
	}
}

// WithAbsoluteStrategy replaces RootStrategy
func WithAbsoluteStrategy(s PathStrategy) Option {
	return func(p *SchemaProcessor) {
		p.absolute = s
	}
}

// WithMissingHandler sets the handler invoked for unresolved references
func WithMissingHandler(h MissingHandler) Option {
	return func(p *SchemaProcessor) {
		p.missing = h
	}
}

// WithLogger sets the logger used for unresolved dependencies
func WithLogger(l logger.Logger) Option {
	return func(p *SchemaProcessor) {
		p.log = l
	}
}

// SchemaProcessor finds reference bearing children of the schema node that a
// model type generates next to its model node
type SchemaProcessor struct {
	modelType        string
	schemaType       string
	referenceTypes   map[string]bool
	locationProperty string

	relative PathStrategy
	absolute PathStrategy
	missing  MissingHandler
	log      logger.Logger
}

// NewSchemaProcessor creates a processor for models named modelType. The
// schema counterpart is found by schemaType, references are children with one
// of referenceTypes and their location is read from locationProperty.
func NewSchemaProcessor(modelType, schemaType string, referenceTypes []string, locationProperty string, opts ...Option) *SchemaProcessor {
	p := &SchemaProcessor{
		modelType:        modelType,
		schemaType:       schemaType,
		referenceTypes:   map[string]bool{},
		locationProperty: locationProperty,
		relative:         RelativeStrategy,
		absolute:         RootStrategy,
		log:              logger.Nop(),
	}

	for _, t := range referenceTypes {
		p.referenceTypes[t] = true
	}

	for _, o := range opts {
		o(p)
	}

	return p
}

// ModelType returns the name of the model type the processor handles
func (p *SchemaProcessor) ModelType() string {
	return p.modelType
}

// Process implements Processor. Any previous dependencies container of the
// model is replaced. On failure the model is left without a dependencies
// container.
func (p *SchemaProcessor) Process(ctx context.Context, model *repository.Node) (path string, err error) {
	op := "process dependencies"

	if model == nil {
		return "", errors.InvalidArgument(op, "model node is required")
	}

	if model.Name != p.modelType {
		return "", errors.TypeMismatch(op, "node %s is not a %s model", model.Path(), p.modelType)
	}

	var deps *repository.Node

	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrap(op, fmt.Errorf("panic: %v", r))
		}

		if err != nil && deps != nil && deps.Parent() != nil {
			deps.Remove()
		}
	}()

	artifact := model.Parent()
	if artifact == nil {
		return "", errors.NotFound(op, "model %s has no artifact", model.Path())
	}

	schemas := artifact.ChildrenOfType(p.schemaType)
	if len(schemas) == 0 {
		return "", errors.NotFound(op, "no %s node next to %s", p.schemaType, model.Path())
	}
	schema := schemas[0]

	for _, old := range model.ChildrenNamed(NodeDependencies) {
		old.Remove()
	}

	if !schema.HasNodes() {
		return "", nil
	}

	// references are relative to the folder holding the artifact
	from := artifact.Parent()
	if from == nil {
		from = artifact
	}

	missing := []string{}

	for _, ref := range schema.Children {
		if !p.referenceTypes[ref.PrimaryType] {
			continue
		}

		// namespace only imports reference nothing in the repository
		location := strings.TrimSpace(ref.String(p.locationProperty))
		if location == "" {
			continue
		}

		if err := ctx.Err(); err != nil {
			return "", errors.TransientIO(op, err, "processing of %s interrupted", model.Path())
		}

		if deps == nil {
			deps, err = model.AddNode(NodeDependencies, PrimaryTypeDependencies)
			if err != nil {
				return "", errors.Wrap(op, err)
			}
		}

		res, err := p.record(deps, from, location)
		if err != nil {
			return "", errors.Wrap(op, err)
		}

		if !res.Exists {
			missing = append(missing, res.Target)
		}
	}

	if deps == nil {
		return "", nil
	}

	if len(missing) > 0 {
		p.log.Debug("unresolved dependencies", "model", model.Path(), "missing", missing)

		if p.missing != nil {
			if err := p.missing(ctx, model, missing); err != nil {
				return "", errors.Wrap(op, err)
			}
		}
	}

	return deps.Path(), nil
}

func (p *SchemaProcessor) record(deps, from *repository.Node, source string) (Resolution, error) {
	d, err := deps.AddNode(NodeDependency, PrimaryTypeDependency)
	if err != nil {
		return Resolution{}, err
	}

	d.SetString(PropSourceReference, source)

	ref, err := Normalize(source)
	if err != nil {
		return Resolution{}, err
	}

	strategy := p.absolute
	if IsRelative(ref) {
		strategy = p.relative
	}

	res, err := strategy(from, ref)
	if err != nil {
		return Resolution{}, err
	}

	d.SetString(PropPath, res.Path)
	d.SetString(PropTarget, res.Target)
	d.SetBool(PropMissing, !res.Exists)

	return res, nil
}

// Record is a dependency record read back from the repository
type Record struct {
	SourceReference string
	Path            string
	Target          string
	Missing         bool
}

// Records returns the dependency records of a model in document order
func Records(model *repository.Node) []Record {
	recs := []Record{}

	deps, ok := model.Child(NodeDependencies)
	if !ok {
		return recs
	}

	for _, d := range deps.ChildrenOfType(PrimaryTypeDependency) {
		recs = append(recs, Record{
			SourceReference: d.String(PropSourceReference),
			Path:            d.String(PropPath),
			Target:          d.String(PropTarget),
			Missing:         d.Bool(PropMissing),
		})
	}

	return recs
}
