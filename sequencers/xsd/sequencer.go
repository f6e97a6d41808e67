// Package xsd is the built in model type for XML schema documents
package xsd

import (
	"context"
	"encoding/xml"
	"fmt"
	"mime"
	"strings"

	"github.com/jumppad-labs/modeltypes/dependency"
	"github.com/jumppad-labs/modeltypes/logger"
	"github.com/jumppad-labs/modeltypes/plugins"
	"github.com/jumppad-labs/modeltypes/repository"
)

const (
	FactoryName = "xsd"
	ClassName   = "org.modeshape.sequencer.xsd.XsdSequencer"
	// ModelTypeName is the name the registry derives for ClassName when it
	// is installed from the xsd category
	ModelTypeName = "xsd.XsdModel"

	NamespaceURI = "http://www.w3.org/2001/XMLSchema"

	NodeSchema                = "schema"
	PrimaryTypeSchemaDocument = "xs:schemaDocument"
	PrimaryTypeImport         = "xs:import"
	PrimaryTypeInclude        = "xs:include"
	PrimaryTypeRedefine       = "xs:redefine"

	PropTargetNamespace = "targetNamespace"
	PropSchemaLocation  = "schemaLocation"
	PropNamespace       = "namespace"
	PropNCName          = "ncName"
	PropSequencedAt     = "sequencedAt"
)

// ClassDescriptor is the class entry that binds ClassName to this package
const ClassDescriptor = `factory    = "xsd"
implements = [api.sequencer]
extensions = ["xsd"]
`

var contentTypes = map[string]bool{
	"application/xml":       true,
	"text/xml":              true,
	"application/xsd+xml":   true,
	"application/x-xsd+xml": true,
}

// Sequencer derives a schema document model from XML schema content
type Sequencer struct {
	log logger.Logger
}

// New is the factory registered under FactoryName
func New() plugins.Sequencer {
	return &Sequencer{log: logger.Nop()}
}

// Register adds the factory to catalog
func Register(catalog *plugins.Catalog) error {
	return catalog.Register(FactoryName, New)
}

// NewDependencyProcessor returns the processor for models of modelType
// generated by this sequencer
func NewDependencyProcessor(modelType string, opts ...dependency.Option) *dependency.SchemaProcessor {
	return dependency.NewSchemaProcessor(
		modelType,
		PrimaryTypeSchemaDocument,
		[]string{PrimaryTypeImport, PrimaryTypeInclude, PrimaryTypeRedefine},
		PropSchemaLocation,
		opts...,
	)
}

func (s *Sequencer) Initialize(cfg plugins.Config) error {
	if cfg.Logger != nil {
		s.log = cfg.Logger
	}

	for prefix, uri := range cfg.Namespaces {
		if uri == NamespaceURI && prefix != "xs" {
			return fmt.Errorf("namespace %s is bound to prefix %s, expected xs", NamespaceURI, prefix)
		}
	}

	return nil
}

// Accepts XML content types, parameters such as charset are ignored
func (s *Sequencer) Accepts(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	return contentTypes[mt]
}

func (s *Sequencer) SourceExtensions() []string {
	return []string{"xsd"}
}

type schemaDocument struct {
	XMLName         xml.Name
	TargetNamespace string       `xml:"targetNamespace,attr"`
	Components      []component `xml:",any"`
}

type component struct {
	XMLName        xml.Name
	Name           string `xml:"name,attr"`
	SchemaLocation string `xml:"schemaLocation,attr"`
	Namespace      string `xml:"namespace,attr"`
}

// Execute writes a schema node below target
func (s *Sequencer) Execute(ctx context.Context, content []byte, target *repository.Node, sc plugins.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := schemaDocument{}
	if err := xml.Unmarshal(content, &doc); err != nil {
		return fmt.Errorf("unable to parse schema: %w", err)
	}

	if doc.XMLName.Space != NamespaceURI || doc.XMLName.Local != "schema" {
		return fmt.Errorf("document element %s is not an XML schema", doc.XMLName.Local)
	}

	schema, err := target.AddNode(NodeSchema, PrimaryTypeSchemaDocument)
	if err != nil {
		return err
	}

	schema.SetString(PropTargetNamespace, doc.TargetNamespace)
	if sc.Values != nil {
		schema.SetProperty(PropSequencedAt, sc.Values.Date(sc.Timestamp))
	}

	for _, c := range doc.Components {
		if c.XMLName.Space != NamespaceURI {
			continue
		}

		primaryType := "xs:" + c.XMLName.Local

		switch c.XMLName.Local {
		case "import", "include", "redefine":
			n, err := schema.AddNode(primaryType, primaryType)
			if err != nil {
				return err
			}

			n.SetString(PropSchemaLocation, c.SchemaLocation)
			if c.Namespace != "" {
				n.SetString(PropNamespace, c.Namespace)
			}

		case "element", "complexType", "simpleType", "attribute":
			name := strings.TrimSpace(c.Name)
			if name == "" {
				continue
			}

			n, err := schema.AddNode(name, primaryType)
			if err != nil {
				return err
			}

			n.SetString(PropNCName, name)
		}
	}

	s.log.Debug("sequenced schema", "target", target.Path(), "components", len(schema.Children))

	return nil
}
