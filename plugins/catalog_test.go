package plugins

import (
	"context"
	"testing"
	"time"

	"github.com/jumppad-labs/modeltypes/repository"
	"github.com/stretchr/testify/require"
)

type nullSequencer struct{}

func (nullSequencer) Initialize(Config) error { return nil }
func (nullSequencer) Accepts(string) bool     { return true }
func (nullSequencer) Execute(context.Context, []byte, *repository.Node, Context) error {
	return nil
}

func TestCatalogProvidesSequencerInterface(t *testing.T) {
	c := NewCatalog()

	d, ok := c.Class(SequencerInterface)
	require.True(t, ok)
	require.True(t, d.Interface)
	require.True(t, d.Abstract)
}

func TestCatalogRejectsDuplicateFactories(t *testing.T) {
	c := NewCatalog()

	require.NoError(t, c.Register("null", func() Sequencer { return nullSequencer{} }))
	require.Error(t, c.Register("null", func() Sequencer { return nullSequencer{} }))
	require.Error(t, c.Register("", nil))

	f, ok := c.Factory("null")
	require.True(t, ok)
	require.NotNil(t, f())
}

func TestParseDescriptorDecodesAttributes(t *testing.T) {
	src := []byte(`
factory    = "xsd"
extends    = "org.modeshape.sequencer.sramp.AbstractResolvingSequencer"
implements = [api.sequencer]
requires   = ["org.modeshape.sequencer.xsd.XsdReader"]
extensions = ["xsd"]
`)

	d, err := ParseDescriptor("org.modeshape.sequencer.xsd.XsdSequencer", src)
	require.NoError(t, err)

	require.Equal(t, "xsd", d.Factory)
	require.Equal(t, []string{SequencerInterface}, d.Implements)
	require.False(t, d.Abstract)
	require.Equal(t, []string{
		"org.modeshape.sequencer.sramp.AbstractResolvingSequencer",
		SequencerInterface,
		"org.modeshape.sequencer.xsd.XsdReader",
	}, d.References())
}

func TestParseDescriptorAcceptsEmptyContent(t *testing.T) {
	d, err := ParseDescriptor("org.example.Helper", []byte{})
	require.NoError(t, err)
	require.Empty(t, d.References())
}

func TestParseDescriptorFailsOnUnknownAttributes(t *testing.T) {
	_, err := ParseDescriptor("org.example.Bad", []byte(`unknown = true`))
	require.Error(t, err)
}

func TestDefaultValueFactoryStoresDatesAsMillis(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	v := NewContext(now).Values.Date(now)

	require.Equal(t, repository.TypeLong, v.Type)
	require.Equal(t, int64(1700000000000), v.Long)
}
