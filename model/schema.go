package model

import "fmt"

// HistoryField is the attribute holding the append-only mutation log.
const HistoryField = "history"

// Metadata keys added by document stores. Input carrying them is accepted
// without error, but they never become entity attributes.
const (
	MetaID       = "_id"
	MetaRevision = "_rev"
	MetaUpdated  = "_updated"
)

// IsMetaKey reports whether key is storage metadata.
func IsMetaKey(key string) bool {
	return key == MetaID || key == MetaRevision || key == MetaUpdated
}

// Field declares one attribute of a schema.
type Field struct {
	// Name is the attribute name.
	Name string

	// Kind is the required JSON type of the value.
	Kind Kind

	// Default is the value new documents start with. It must be of Kind.
	Default any

	// Validate is an optional predicate every assigned value must satisfy.
	Validate Validator
}

// Schema is the attribute set of one entity type.
type Schema struct {
	name    string
	idField string
	fields  []Field
	index   map[string]int
}

// NewSchema builds a schema. It panics when fields are malformed; schemas are
// declared at package level and a broken one is a programming error.
func NewSchema(name, idField string, fields ...Field) *Schema {
	s := &Schema{
		name:    name,
		idField: idField,
		fields:  make([]Field, 0, len(fields)),
		index:   make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		if _, dup := s.index[f.Name]; dup {
			panic(fmt.Sprintf("model: schema %s declares %q twice", name, f.Name))
		}
		def, err := Normalize(f.Default)
		if err != nil {
			panic(fmt.Sprintf("model: schema %s field %q: %v", name, f.Name, err))
		}
		if KindOf(def) != f.Kind {
			panic(fmt.Sprintf("model: schema %s field %q: default is %s, want %s", name, f.Name, KindOf(def), f.Kind))
		}
		f.Default = def
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	if _, ok := s.index[idField]; !ok {
		panic(fmt.Sprintf("model: schema %s has no identifier field %q", name, idField))
	}
	return s
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// IDField returns the identifier attribute name.
func (s *Schema) IDField() string { return s.idField }

// Fields returns the declared fields in order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Has reports whether name is a schema attribute.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Kinds returns the kind of every field, keyed by name.
func (s *Schema) Kinds() map[string]Kind {
	out := make(map[string]Kind, len(s.fields))
	for _, f := range s.fields {
		out[f.Name] = f.Kind
	}
	return out
}
