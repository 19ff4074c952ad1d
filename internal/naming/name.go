package naming

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultName is the well-known name the server is published under.
const DefaultName = "test.my_context/Echo.Object"

var ErrInvalidName = errors.New("invalid name")

// Component is one step of a compound name: an id and an optional kind,
// written "id.kind".
type Component struct {
	ID   string
	Kind string
}

func (c Component) String() string {
	if c.Kind == "" {
		return c.ID
	}
	return c.ID + "." + c.Kind
}

// Name is a path of components from the root context to the object.
type Name []Component

// ParseName parses "ctx.kind/obj.kind". The kind is everything after the last
// dot of a component.
func ParseName(s string) (Name, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidName)
	}

	parts := strings.Split(s, "/")
	name := make(Name, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("%w: empty component in %q", ErrInvalidName, s)
		}
		c := Component{ID: part}
		if i := strings.LastIndex(part, "."); i >= 0 {
			c.ID, c.Kind = part[:i], part[i+1:]
		}
		if c.ID == "" {
			return nil, fmt.Errorf("%w: component %q has no id", ErrInvalidName, part)
		}
		name = append(name, c)
	}
	return name, nil
}

func (n Name) String() string {
	parts := make([]string, len(n))
	for i, c := range n {
		parts[i] = c.String()
	}
	return strings.Join(parts, "/")
}

// Context returns the enclosing context of the final component.
func (n Name) Context() Name {
	if len(n) == 0 {
		return nil
	}
	return n[:len(n)-1]
}
