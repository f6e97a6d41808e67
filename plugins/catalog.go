package plugins

import (
	"fmt"
	"sync"
)

// Factory creates a new, uninitialised plugin instance
type Factory func() Sequencer

// Catalog is the host side of plugin loading. It holds the factory functions
// compiled into the host and the classes the host provides to every unit,
// such as the Sequencer capability interface.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
	classes   map[string]Descriptor
}

// NewCatalog returns a Catalog that provides SequencerInterface
func NewCatalog() *Catalog {
	c := &Catalog{
		factories: map[string]Factory{},
		classes:   map[string]Descriptor{},
	}

	c.Provide(SequencerInterface, Descriptor{Interface: true, Abstract: true})

	return c
}

// Register adds a factory, names must be unique
func (c *Catalog) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("factory name and function are required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.factories[name]; ok {
		return fmt.Errorf("factory %s is already registered", name)
	}

	c.factories[name] = f

	return nil
}

// Factory returns the factory registered under name
func (c *Catalog) Factory(name string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, ok := c.factories[name]
	return f, ok
}

// Provide makes a class visible to every unit without it being packaged
func (c *Catalog) Provide(className string, d Descriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.classes[className] = d
}

// Class returns a class provided by the host
func (c *Catalog) Class(className string) (Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.classes[className]
	return d, ok
}
