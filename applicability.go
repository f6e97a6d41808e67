package modeltypes

import (
	"path"
)

// Applicable returns the model types whose plugin accepts contentType. A
// plugin that panics in its predicate is treated as not applicable.
func Applicable(contentType string, modelTypes []*ModelType) []*ModelType {
	found := []*ModelType{}

	for _, mt := range modelTypes {
		if accepts(mt, contentType) {
			found = append(found, mt)
		}
	}

	return found
}

func accepts(mt *ModelType, contentType string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	return mt.Accepts(contentType)
}

// DefaultFor picks the model type preferring the extension of filename, when
// none does the first applicable model type is returned. It returns nil when
// applicable is empty.
func DefaultFor(filename string, applicable []*ModelType) *ModelType {
	if len(applicable) == 0 {
		return nil
	}

	ext := path.Ext(filename)
	for _, mt := range applicable {
		if mt.HasExtension(ext) {
			return mt
		}
	}

	return applicable[0]
}
