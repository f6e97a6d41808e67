package modeltypes

import (
	"fmt"
	"io"
	"sync"

	"github.com/jumppad-labs/modeltypes/errors"
	"github.com/jumppad-labs/modeltypes/plugins"
	"github.com/klauspost/compress/zip"
)

// ClassNotFoundError is returned when no unit and no host class matches Name
type ClassNotFoundError struct {
	Name string
}

func (e *ClassNotFoundError) Error() string {
	return fmt.Sprintf("class not found: %s", e.Name)
}

// MissingDependencyError is returned when Class exists but a class it extends,
// implements or requires can not be found yet
type MissingDependencyError struct {
	Class   string
	Missing string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("class %s depends on missing class %s", e.Class, e.Missing)
}

// ClassFormatError is returned when a class descriptor can not be decoded or
// its references form a cycle
type ClassFormatError struct {
	Name string
	Err  error
}

func (e *ClassFormatError) Error() string {
	return fmt.Sprintf("invalid class %s: %s", e.Name, e.Err)
}

func (e *ClassFormatError) Unwrap() error {
	return e.Err
}

// Class is a class loaded from a unit or provided by the host
type Class struct {
	Name string
	// Unit is the path of the defining unit, empty for host classes
	Unit       string
	Descriptor plugins.Descriptor
	Super      *Class
	// Interfaces are the loaded classes named in Descriptor.Implements
	Interfaces []*Class
}

// Implements returns true when the class, one of its super classes or one of
// the interfaces they implement is iface
func (c *Class) Implements(iface string) bool {
	if c == nil {
		return false
	}

	if c.Name == iface {
		return true
	}

	// host classes are not resolved, their declared names still count
	for _, i := range c.Descriptor.Implements {
		if i == iface {
			return true
		}
	}

	for _, i := range c.Interfaces {
		if i.Implements(iface) {
			return true
		}
	}

	return c.Super.Implements(iface)
}

// Concrete returns true when the class can be instantiated
func (c *Class) Concrete() bool {
	return !c.Descriptor.Abstract && !c.Descriptor.Interface
}

// Factory returns the closest factory name declared in the hierarchy
func (c *Class) Factory() string {
	for cl := c; cl != nil; cl = cl.Super {
		if cl.Descriptor.Factory != "" {
			return cl.Descriptor.Factory
		}
	}

	return ""
}

// Extensions returns the preferred source extensions declared in the hierarchy
func (c *Class) Extensions() []string {
	exts := []string{}
	for cl := c; cl != nil; cl = cl.Super {
		exts = append(exts, cl.Descriptor.Extensions...)
	}

	return exts
}

type classEntry struct {
	unit  string
	entry string
}

// ClassLoader is an append only class loading domain. Classes are searched
// in the parent catalog first and then in the units added so far, the first
// unit that contains a class defines it.
type ClassLoader struct {
	mu      sync.Mutex
	parent  *plugins.Catalog
	units   []string
	index   map[string]classEntry
	defined map[string]*Class
}

// NewClassLoader creates an empty loader parented to the host catalog
func NewClassLoader(parent *plugins.Catalog) *ClassLoader {
	return &ClassLoader{
		parent:  parent,
		index:   map[string]classEntry{},
		defined: map[string]*Class{},
	}
}

// AddUnit indexes the classes of the unit at path, adding the same path
// twice does nothing
func (l *ClassLoader) AddUnit(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, u := range l.units {
		if u == path {
			return nil
		}
	}

	r, err := zip.OpenReader(path)
	if err != nil {
		return errors.TransientIO("add unit", err, "unable to open unit %s", path)
	}
	defer r.Close()

	for _, f := range r.File {
		if !isClassEntry(f.Name) {
			continue
		}

		name := ClassName(f.Name)
		if _, ok := l.index[name]; !ok {
			l.index[name] = classEntry{unit: path, entry: f.Name}
		}
	}

	l.units = append(l.units, path)

	return nil
}

// Units returns the unit paths in the order they were added
func (l *ClassLoader) Units() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string{}, l.units...)
}

// LoadClass loads the named class and every class it references. Only
// successful loads are cached so a class that failed because of a missing
// dependency can be loaded once the dependency has been added.
func (l *ClassLoader) LoadClass(name string) (*Class, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.load(name, map[string]bool{})
}

func (l *ClassLoader) load(name string, visiting map[string]bool) (*Class, error) {
	if l.parent != nil {
		if d, ok := l.parent.Class(name); ok {
			return &Class{Name: name, Descriptor: d}, nil
		}
	}

	if c, ok := l.defined[name]; ok {
		return c, nil
	}

	if visiting[name] {
		return nil, &ClassFormatError{Name: name, Err: fmt.Errorf("circular class reference")}
	}

	ce, ok := l.index[name]
	if !ok {
		return nil, &ClassNotFoundError{Name: name}
	}

	src, err := readClassEntry(ce)
	if err != nil {
		return nil, errors.TransientIO("load class", err, "unable to read %s from %s", ce.entry, ce.unit)
	}

	d, err := plugins.ParseDescriptor(name, src)
	if err != nil {
		return nil, &ClassFormatError{Name: name, Err: err}
	}

	visiting[name] = true
	defer delete(visiting, name)

	c := &Class{Name: name, Unit: ce.unit, Descriptor: d}

	for _, ref := range d.References() {
		rc, err := l.load(ref, visiting)
		if err != nil {
			var cnf *ClassNotFoundError
			var mde *MissingDependencyError

			switch {
			case errors.As(err, &cnf):
				return nil, &MissingDependencyError{Class: name, Missing: cnf.Name}
			case errors.As(err, &mde):
				return nil, &MissingDependencyError{Class: name, Missing: mde.Missing}
			}

			return nil, err
		}

		if ref == d.Extends && c.Super == nil {
			c.Super = rc
		}

		if contains(d.Implements, ref) && !containsClass(c.Interfaces, rc) {
			c.Interfaces = append(c.Interfaces, rc)
		}
	}

	l.defined[name] = c

	return c, nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}

	return false
}

func containsClass(classes []*Class, c *Class) bool {
	for _, cl := range classes {
		if cl.Name == c.Name {
			return true
		}
	}

	return false
}

func readClassEntry(ce classEntry) ([]byte, error) {
	r, err := zip.OpenReader(ce.unit)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != ce.entry {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()

		return io.ReadAll(rc)
	}

	return nil, fmt.Errorf("entry %s no longer present", ce.entry)
}
