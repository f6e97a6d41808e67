package plugins

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"
)

// Descriptor is the content of a class entry inside a plugin unit, i.e.
//
//	factory    = "xsd"
//	extends    = "org.modeshape.sequencer.sramp.AbstractResolvingSequencer"
//	implements = [api.sequencer]
//	requires   = ["org.modeshape.sequencer.xsd.XsdReader"]
//	extensions = ["xsd"]
//
// Classes bind to Go code only through Factory, the name of a factory function
// registered in the host Catalog. Nothing inside a unit is ever executed.
type Descriptor struct {
	Factory    string   `hcl:"factory,optional"`
	Extends    string   `hcl:"extends,optional"`
	Implements []string `hcl:"implements,optional"`
	Abstract   bool     `hcl:"abstract,optional"`
	Interface  bool     `hcl:"interface,optional"`
	Requires   []string `hcl:"requires,optional"`
	Extensions []string `hcl:"extensions,optional"`
}

// References returns every class name the descriptor needs to be loadable
func (d Descriptor) References() []string {
	refs := []string{}
	if d.Extends != "" {
		refs = append(refs, d.Extends)
	}

	refs = append(refs, d.Implements...)

	return append(refs, d.Requires...)
}

// ParseDescriptor decodes a class descriptor, name is only used in diagnostics
func ParseDescriptor(name string, src []byte) (Descriptor, error) {
	d := Descriptor{}

	err := hclsimple.Decode(name+".hcl", src, descriptorContext(), &d)
	if err != nil {
		return Descriptor{}, fmt.Errorf("invalid class descriptor %s: %w", name, err)
	}

	return d, nil
}

func descriptorContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"api": cty.ObjectVal(map[string]cty.Value{
				"sequencer": cty.StringVal(SequencerInterface),
			}),
		},
	}
}
