package repository

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jumppad-labs/modeltypes/errors"
)

// Node is an element of the repository tree. Nodes are only valid inside the
// Session that returned them.
type Node struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	PrimaryType string               `json:"primary_type"`
	Mixins      []string             `json:"mixins,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Children    []*Node              `json:"children,omitempty"`

	parent *Node
}

func newNode(name, primaryType string) *Node {
	return &Node{
		ID:          uuid.NewString(),
		Name:        name,
		PrimaryType: primaryType,
		Properties:  map[string]*Property{},
	}
}

// NewRoot creates an empty root node
func NewRoot() *Node {
	return newNode("", PrimaryTypeRoot)
}

// PrimaryTypeRoot is the primary type of the root node
const PrimaryTypeRoot = "root"

// Parent returns the parent node or nil for the root
func (n *Node) Parent() *Node {
	return n.parent
}

// IsRoot returns true when n has no parent
func (n *Node) IsRoot() bool {
	return n.parent == nil
}

// Depth returns the number of ancestors of n, the root has depth 0
func (n *Node) Depth() int {
	d := 0
	for p := n.parent; p != nil; p = p.parent {
		d++
	}

	return d
}

// Index returns the 1 based position of n among its same name siblings
func (n *Node) Index() int {
	if n.parent == nil {
		return 1
	}

	i := 0
	for _, c := range n.parent.Children {
		if c.Name == n.Name {
			i++
		}
		if c == n {
			return i
		}
	}

	return 1
}

// Path returns the absolute path of the node
func (n *Node) Path() string {
	if n.parent == nil {
		return "/"
	}

	segment := n.Name
	if i := n.Index(); i > 1 {
		segment = fmt.Sprintf("%s[%d]", n.Name, i)
	}

	pp := n.parent.Path()
	if pp == "/" {
		return "/" + segment
	}

	return pp + "/" + segment
}

// AddNode appends a new child node, same name siblings are allowed
func (n *Node) AddNode(name, primaryType string) (*Node, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	c := newNode(name, primaryType)
	c.parent = n
	n.Children = append(n.Children, c)

	return c, nil
}

// Remove detaches n from its parent
func (n *Node) Remove() error {
	if n.parent == nil {
		return errors.InvalidArgument("remove", "the root node can not be removed")
	}

	n.parent.Children = slices.DeleteFunc(n.parent.Children, func(c *Node) bool { return c == n })
	n.parent = nil

	return nil
}

// Child returns the first child called name
func (n *Node) Child(name string) (*Node, bool) {
	for _, c := range n.Children {
		if c.Name == name {
			return c, true
		}
	}

	return nil, false
}

// ChildrenNamed returns all same name siblings called name in document order
func (n *Node) ChildrenNamed(name string) []*Node {
	nodes := []*Node{}
	for _, c := range n.Children {
		if c.Name == name {
			nodes = append(nodes, c)
		}
	}

	return nodes
}

// ChildrenOfType returns the children with the given primary type
func (n *Node) ChildrenOfType(primaryType string) []*Node {
	nodes := []*Node{}
	for _, c := range n.Children {
		if c.PrimaryType == primaryType {
			nodes = append(nodes, c)
		}
	}

	return nodes
}

// HasNodes returns true when n has at least one child
func (n *Node) HasNodes() bool {
	return len(n.Children) > 0
}

// Node resolves a path relative to n. Segments may carry a same name sibling
// index, i.e. "dependencies/dependency[2]", ".." moves to the parent.
func (n *Node) Node(relPath string) (*Node, error) {
	current := n
	for _, seg := range strings.Split(strings.Trim(relPath, "/"), "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if current.parent == nil {
				return nil, errors.InvalidPath("resolve", "path %q leaves the repository root", relPath)
			}
			current = current.parent
			continue
		}

		name, index, err := parseSegment(seg)
		if err != nil {
			return nil, err
		}

		siblings := current.ChildrenNamed(name)
		if index > len(siblings) {
			return nil, errors.NotFound("resolve", "node %q does not exist below %s", relPath, n.Path())
		}

		current = siblings[index-1]
	}

	return current, nil
}

// HasNode returns true when relPath resolves below n
func (n *Node) HasNode(relPath string) bool {
	_, err := n.Node(relPath)
	return err == nil
}

// AddMixin adds a capability tag, adding an existing mixin is a no-op
func (n *Node) AddMixin(mixin string) {
	if !n.HasMixin(mixin) {
		n.Mixins = append(n.Mixins, mixin)
	}
}

// RemoveMixin removes a capability tag
func (n *Node) RemoveMixin(mixin string) {
	n.Mixins = slices.DeleteFunc(n.Mixins, func(m string) bool { return m == mixin })
}

// HasMixin returns true when n carries mixin
func (n *Node) HasMixin(mixin string) bool {
	return slices.Contains(n.Mixins, mixin)
}

// SetProperty sets a single valued property
func (n *Node) SetProperty(name string, v Value) {
	n.Properties[name] = &Property{Name: name, Values: []Value{v}}
}

// SetMultiProperty sets a multi valued property, an empty slice is allowed
func (n *Node) SetMultiProperty(name string, vs []Value) {
	n.Properties[name] = &Property{Name: name, Multiple: true, Values: append([]Value{}, vs...)}
}

// RemoveProperty deletes a property
func (n *Node) RemoveProperty(name string) {
	delete(n.Properties, name)
}

// Property returns the named property
func (n *Node) Property(name string) (*Property, bool) {
	p, ok := n.Properties[name]
	return p, ok
}

// HasProperty returns true when the property exists
func (n *Node) HasProperty(name string) bool {
	_, ok := n.Properties[name]
	return ok
}

func (n *Node) SetString(name, s string)  { n.SetProperty(name, StringValue(s)) }
func (n *Node) SetBool(name string, b bool) { n.SetProperty(name, BoolValue(b)) }
func (n *Node) SetLong(name string, l int64) { n.SetProperty(name, LongValue(l)) }
func (n *Node) SetBinary(name string, b []byte) { n.SetProperty(name, BinaryValue(b)) }

// SetStrings sets a multi valued string property
func (n *Node) SetStrings(name string, ss []string) {
	vs := make([]Value, 0, len(ss))
	for _, s := range ss {
		vs = append(vs, StringValue(s))
	}

	n.SetMultiProperty(name, vs)
}

// String returns the first value of the property as a string
func (n *Node) String(name string) string {
	v, ok := n.Properties[name].Value()
	if !ok {
		return ""
	}

	return v.AsString()
}

// Strings returns all values of the property as strings
func (n *Node) Strings(name string) []string {
	p, ok := n.Properties[name]
	if !ok {
		return []string{}
	}

	ss := make([]string, 0, len(p.Values))
	for _, v := range p.Values {
		ss = append(ss, v.AsString())
	}

	return ss
}

func (n *Node) Bool(name string) bool {
	v, _ := n.Properties[name].Value()
	return v.Bool
}

func (n *Node) Long(name string) int64 {
	v, _ := n.Properties[name].Value()
	return v.Long
}

func (n *Node) Binary(name string) []byte {
	v, _ := n.Properties[name].Value()
	return v.Binary
}

// Walk calls fn for n and every descendant in document order, returning false
// from fn skips the children of that node
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}

	for _, c := range n.Children {
		c.Walk(fn)
	}
}

func (n *Node) clone(parent *Node) *Node {
	nn := &Node{
		ID:          n.ID,
		Name:        n.Name,
		PrimaryType: n.PrimaryType,
		Mixins:      slices.Clone(n.Mixins),
		Properties:  make(map[string]*Property, len(n.Properties)),
		Children:    make([]*Node, 0, len(n.Children)),
		parent:      parent,
	}

	for k, p := range n.Properties {
		nn.Properties[k] = p.clone()
	}

	for _, c := range n.Children {
		nn.Children = append(nn.Children, c.clone(nn))
	}

	return nn
}

// relink restores parent pointers after the tree was decoded
func (n *Node) relink() {
	if n.Properties == nil {
		n.Properties = map[string]*Property{}
	}

	for _, c := range n.Children {
		c.parent = n
		c.relink()
	}
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/[]") {
		return errors.InvalidArgument("add node", "invalid node name %q", name)
	}

	return nil
}

func parseSegment(seg string) (string, int, error) {
	open := strings.IndexByte(seg, '[')
	if open < 0 {
		return seg, 1, nil
	}

	if !strings.HasSuffix(seg, "]") {
		return "", 0, errors.InvalidPath("resolve", "malformed path segment %q", seg)
	}

	i, err := strconv.Atoi(seg[open+1 : len(seg)-1])
	if err != nil || i < 1 {
		return "", 0, errors.InvalidPath("resolve", "malformed same name sibling index in %q", seg)
	}

	return seg[:open], i, nil
}
