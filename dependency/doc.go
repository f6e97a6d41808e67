// Package dependency discovers cross artifact references in generated models.
//
// A SchemaProcessor walks the schema node a model type produced next to its
// model node, resolves every import, include or redefine reference against
// the repository tree and records the result below the model node:
//
//	/movies/movies.xsd                    artifact
//	/movies/movies.xsd/schema             xs:schemaDocument
//	/movies/movies.xsd/xsd.XsdModel       model
//	  dependencies/dependency             sourceReference, path, target, missing
//
// Graph orders modelled artifacts so that dependencies are visited first.
package dependency
