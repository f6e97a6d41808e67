package plugins

import (
	"context"
	"time"

	"github.com/jumppad-labs/modeltypes/logger"
	"github.com/jumppad-labs/modeltypes/repository"
)

// SequencerInterface is the class name of the capability every model type
// plugin must implement, either directly or through a super class.
const SequencerInterface = "org.modeshape.jcr.api.sequencer.Sequencer"

// Sequencer is the contract between the registry and a model type plugin
type Sequencer interface {
	// Initialize is called once by the registry before the plugin is used
	Initialize(cfg Config) error

	// Accepts returns true when the plugin can interpret content of the given
	// declared content type
	Accepts(contentType string) bool

	// Execute derives a model from content and writes it below target
	Execute(ctx context.Context, content []byte, target *repository.Node, sc Context) error
}

// ExtensionProvider is implemented by plugins that prefer some file extensions,
// the registry merges these with the extensions declared by the class descriptor
type ExtensionProvider interface {
	SourceExtensions() []string
}

// Config is passed to Sequencer.Initialize
type Config struct {
	Logger         logger.Logger
	RepositoryName string
	// Namespaces maps prefixes to namespace URIs known to the repository
	Namespaces map[string]string
	// NodeTypes lists the primary types the repository knows about
	NodeTypes []string
}

// Context is passed to every Sequencer.Execute call
type Context struct {
	Timestamp time.Time
	Values    ValueFactory
}

// NewContext returns an execution context stamped with now
func NewContext(now time.Time) Context {
	return Context{Timestamp: now, Values: DefaultValueFactory()}
}

// ValueFactory creates repository values for plugins
type ValueFactory interface {
	String(s string) repository.Value
	Bool(b bool) repository.Value
	Long(l int64) repository.Value
	Binary(b []byte) repository.Value
	Date(t time.Time) repository.Value
}

type valueFactory struct{}

// DefaultValueFactory returns the stock ValueFactory, dates are stored as
// milliseconds since the epoch
func DefaultValueFactory() ValueFactory {
	return valueFactory{}
}

func (valueFactory) String(s string) repository.Value  { return repository.StringValue(s) }
func (valueFactory) Bool(b bool) repository.Value      { return repository.BoolValue(b) }
func (valueFactory) Long(l int64) repository.Value     { return repository.LongValue(l) }
func (valueFactory) Binary(b []byte) repository.Value  { return repository.BinaryValue(b) }
func (valueFactory) Date(t time.Time) repository.Value { return repository.LongValue(t.UnixMilli()) }
