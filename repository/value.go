package repository

import "fmt"

// PropertyType is the type of a property value
type PropertyType int

const (
	TypeString PropertyType = iota
	TypeBoolean
	TypeLong
	TypeBinary
)

func (p PropertyType) String() string {
	switch p {
	case TypeBoolean:
		return "boolean"
	case TypeLong:
		return "long"
	case TypeBinary:
		return "binary"
	}

	return "string"
}

// Value is a single typed property value
type Value struct {
	Type   PropertyType `json:"type"`
	Bool   bool         `json:"bool,omitempty"`
	Long   int64        `json:"long,omitempty"`
	String string       `json:"string,omitempty"`
	Binary []byte       `json:"binary,omitempty"`
}

func StringValue(s string) Value { return Value{Type: TypeString, String: s} }
func BoolValue(b bool) Value     { return Value{Type: TypeBoolean, Bool: b} }
func LongValue(l int64) Value    { return Value{Type: TypeLong, Long: l} }

// BinaryValue copies b so later changes by the caller do not leak into the tree
func BinaryValue(b []byte) Value {
	return Value{Type: TypeBinary, Binary: append([]byte{}, b...)}
}

// AsString converts any value to its string form
func (v Value) AsString() string {
	switch v.Type {
	case TypeBoolean:
		return fmt.Sprintf("%t", v.Bool)
	case TypeLong:
		return fmt.Sprintf("%d", v.Long)
	case TypeBinary:
		return string(v.Binary)
	}

	return v.String
}

// Property is a named single or multi valued property
type Property struct {
	Name     string  `json:"name"`
	Multiple bool    `json:"multiple,omitempty"`
	Values   []Value `json:"values"`
}

// Value returns the first value of the property
func (p *Property) Value() (Value, bool) {
	if p == nil || len(p.Values) == 0 {
		return Value{}, false
	}

	return p.Values[0], true
}

func (p *Property) clone() *Property {
	np := &Property{Name: p.Name, Multiple: p.Multiple, Values: make([]Value, len(p.Values))}
	for i, v := range p.Values {
		np.Values[i] = v
		if v.Binary != nil {
			np.Values[i].Binary = append([]byte{}, v.Binary...)
		}
	}

	return np
}
