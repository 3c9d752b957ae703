package auth

import (
	"maps"
	"slices"
)

// Field reads and writes one named attribute of a Record.
type Field struct {
	// Get returns the field value, nil when empty.
	Get func(rec Record) []string

	// Set assigns values; nil or empty values clear the field.
	Set func(rec Record, values []string) error
}

// Fields is the registry of settable local attributes, keyed by name.
// It is populated once by the store and read-only afterwards.
type Fields struct {
	byName map[string]Field
}

// NewFields returns an empty registry.
func NewFields() *Fields {
	return &Fields{byName: make(map[string]Field)}
}

// Register adds or replaces the field called name.
func (f *Fields) Register(name string, field Field) *Fields {
	f.byName[name] = field
	return f
}

// Lookup returns the field called name. A false result means the model has no
// such attribute.
func (f *Fields) Lookup(name string) (Field, bool) {
	if f == nil {
		return Field{}, false
	}
	field, ok := f.byName[name]
	return field, ok
}

// Names lists the registered field names in sorted order.
func (f *Fields) Names() []string {
	return slices.Sorted(maps.Keys(f.byName))
}

// FirstValue returns the first value of name on rec, or "" when the field is
// unknown or empty.
func (f *Fields) FirstValue(rec Record, name string) string {
	field, ok := f.Lookup(name)
	if !ok || field.Get == nil {
		return ""
	}
	if values := field.Get(rec); len(values) > 0 {
		return values[0]
	}
	return ""
}
