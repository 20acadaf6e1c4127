// Package schema holds the runtime registry of model schemas.
//
// A model is a named, versioned set of typed members announced by the world
// contract. Key members identify the entity a row belongs to. Schemas are
// immutable once registered; a changed shape arrives as a new version and is
// loaded into a fresh registry by the refresh manager.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/jobez/dojo/internal/queryerr"
)

const (
	// IdentityColumn is the internal row identity used as the final ordering term.
	IdentityColumn = "internal_id"
	// EntityColumn links a model row to its entity.
	EntityColumn = "entity_id"
)

var (
	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	reservedFields    = map[string]struct{}{
		IdentityColumn: {},
		EntityColumn:   {},
		"entity":       {},
	}
)

// Field is one member of a model.
type Field struct {
	Name string
	Type string // member type as announced, e.g. "u32" or "ContractAddress"
	Kind Kind
	Key  bool
}

// Model is a registered model schema.
type Model struct {
	Name    string
	Version int
	Fields  []Field
}

// Field returns the named member.
func (m Model) Field(name string) (Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Position returns the declaration index of the named member, or -1.
func (m Model) Position(name string) int {
	for i, f := range m.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// KeyFields returns the key members in declaration order.
func (m Model) KeyFields() []Field {
	keys := make([]Field, 0, len(m.Fields))
	for _, f := range m.Fields {
		if f.Key {
			keys = append(keys, f)
		}
	}
	return keys
}

func (m Model) equal(other Model) bool {
	if m.Name != other.Name || m.Version != other.Version || len(m.Fields) != len(other.Fields) {
		return false
	}
	for i := range m.Fields {
		if m.Fields[i] != other.Fields[i] {
			return false
		}
	}
	return true
}

// NewField builds a field from an announced member type.
func NewField(name, typeName string, key bool) (Field, error) {
	kind, err := KindForType(typeName)
	if err != nil {
		return Field{}, queryerr.SchemaValidation(name, "%v", err)
	}
	return Field{Name: name, Type: typeName, Kind: kind, Key: key}, nil
}

// Validate checks naming rules and member uniqueness.
func (m Model) Validate() error {
	if err := validateIdentifier(m.Name); err != nil {
		return queryerr.SchemaValidation(m.Name, "invalid model name: %v", err)
	}
	if len(m.Fields) == 0 {
		return queryerr.SchemaValidation(m.Name, "model has no members")
	}
	seen := make(map[string]struct{}, len(m.Fields))
	for _, f := range m.Fields {
		subject := m.Name + "." + f.Name
		if err := validateIdentifier(f.Name); err != nil {
			return queryerr.SchemaValidation(subject, "invalid member name: %v", err)
		}
		if _, reserved := reservedFields[strings.ToLower(f.Name)]; reserved {
			return queryerr.SchemaValidation(subject, "member name is reserved")
		}
		if _, dup := seen[f.Name]; dup {
			return queryerr.SchemaValidation(subject, "duplicate member")
		}
		seen[f.Name] = struct{}{}
		if f.Kind < KindInt || f.Kind > KindBytes {
			return queryerr.SchemaValidation(subject, "unknown kind %d", int(f.Kind))
		}
	}
	if len(m.KeyFields()) == 0 {
		return queryerr.SchemaValidation(m.Name, "model has no key members")
	}
	return nil
}

func validateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%q is not an identifier", name)
	}
	if strings.HasPrefix(name, "__") {
		return fmt.Errorf("%q uses the reserved __ prefix", name)
	}
	return nil
}

// Registry maps model names to schemas. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Model
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]Model)}
}

// Register adds a model. Registering an identical schema again is a no-op;
// a different schema under an existing name is rejected.
func (r *Registry) Register(m Model) error {
	if err := m.Validate(); err != nil {
		return err
	}
	m.Fields = append([]Field(nil), m.Fields...)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.models[m.Name]; ok {
		if existing.equal(m) {
			return nil
		}
		return queryerr.SchemaValidation(m.Name, "conflicting schema already registered (version %d)", existing.Version)
	}
	r.models[m.Name] = m
	return nil
}

// Get returns the named model.
func (r *Registry) Get(name string) (Model, error) {
	r.mu.RLock()
	m, ok := r.models[name]
	r.mu.RUnlock()
	if !ok {
		return Model{}, queryerr.NotFound(name, "model is not registered")
	}
	return m, nil
}

// FieldKind returns the kind of a model member.
func (r *Registry) FieldKind(model, field string) (Kind, error) {
	m, err := r.Get(model)
	if err != nil {
		return 0, err
	}
	f, ok := m.Field(field)
	if !ok {
		return 0, queryerr.SchemaValidation(model+"."+field, "unknown member")
	}
	return f.Kind, nil
}

// Models returns all registered models sorted by name.
func (r *Registry) Models() []Model {
	r.mu.RLock()
	out := make([]Model, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Fingerprint returns a stable digest of one model schema.
func (m Model) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "model|%s|%d\n", m.Name, m.Version)
	for _, f := range m.Fields {
		fmt.Fprintf(h, "field|%s|%s|%t\n", f.Name, f.Type, f.Key)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprints returns the per-model digests keyed by model name.
func (r *Registry) Fingerprints() map[string]string {
	models := r.Models()
	out := make(map[string]string, len(models))
	for _, m := range models {
		out[m.Name] = m.Fingerprint()
	}
	return out
}

// Fingerprint returns a stable digest of every registered schema.
func (r *Registry) Fingerprint() string {
	h := sha256.New()
	for _, m := range r.Models() {
		fmt.Fprintf(h, "%s=%s\n", m.Name, m.Fingerprint())
	}
	return hex.EncodeToString(h.Sum(nil))
}
