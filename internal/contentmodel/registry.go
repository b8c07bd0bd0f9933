package contentmodel

import (
	"errors"
	"fmt"
	"strings"

	"content-graphql/internal/naming"
)

// ErrUnknownModel is returned when a UID does not name a registered model or component.
var ErrUnknownModel = errors.New("unknown model")

// Registry is the frozen set of models and components. It is built once and only
// read afterwards, so concurrent readers need no locking.
type Registry struct {
	models     []*Model
	components []*Model
	byUID      map[string]*Model
	byGlobalID map[string]*Model
}

// NewRegistry normalises defaults, derives associations and validates relation targets.
// Component references of component and dynamic-zone attributes are checked by the
// schema compiler, which reports them against the attribute that uses them.
func NewRegistry(models ...*Model) (*Registry, error) {
	r := &Registry{
		byUID:      make(map[string]*Model, len(models)),
		byGlobalID: make(map[string]*Model, len(models)),
	}
	namer := naming.Default()

	for _, m := range models {
		if m == nil {
			continue
		}
		if err := normalise(m, namer); err != nil {
			return nil, err
		}
		if _, exists := r.byUID[m.UID]; exists {
			return nil, fmt.Errorf("duplicate model uid %q", m.UID)
		}
		if other, exists := r.byGlobalID[m.GlobalID]; exists {
			return nil, fmt.Errorf("models %q and %q share global id %q", other.UID, m.UID, m.GlobalID)
		}
		r.byUID[m.UID] = m
		r.byGlobalID[m.GlobalID] = m
		if m.IsComponent() {
			r.components = append(r.components, m)
		} else {
			r.models = append(r.models, m)
		}
	}

	for _, m := range append(append([]*Model{}, r.models...), r.components...) {
		assocs, err := r.deriveAssociations(m)
		if err != nil {
			return nil, err
		}
		m.Associations = assocs
	}
	return r, nil
}

func normalise(m *Model, namer *naming.Namer) error {
	if m.Name == "" {
		return errors.New("model without name")
	}
	switch m.Kind {
	case "":
		m.Kind = KindCollectionType
	case KindCollectionType, KindSingleType, KindComponent:
	default:
		return fmt.Errorf("model %q: unknown kind %q", m.Name, m.Kind)
	}
	if m.UID == "" {
		m.UID = defaultUID(m)
	}
	if m.GlobalID == "" {
		m.GlobalID = defaultGlobalID(m, namer)
	}
	if m.PrimaryKey == "" {
		m.PrimaryKey = "id"
	}
	if m.CollectionName == "" {
		base := strings.ReplaceAll(m.Name, "-", "_")
		if m.IsComponent() && m.Category != "" {
			base = "components_" + strings.ReplaceAll(m.Category, "-", "_") + "_" + namer.Pluralize(base)
		} else if m.IsCollectionType() {
			base = namer.Pluralize(base)
		}
		m.CollectionName = base
	}
	for _, attr := range m.Attributes {
		if attr.Type == "" {
			return fmt.Errorf("model %q attribute %q: missing type", m.UID, attr.Name)
		}
		if attr.Type == TypeEnumeration && len(attr.Enum) == 0 {
			return fmt.Errorf("model %q attribute %q: enumeration without values", m.UID, attr.Name)
		}
	}
	return nil
}

func defaultUID(m *Model) string {
	switch {
	case m.IsComponent():
		if m.Category != "" {
			return m.Category + "." + m.Name
		}
		return "default." + m.Name
	case m.Plugin != "":
		return "plugin::" + m.Plugin + "." + m.Name
	default:
		return "application::" + m.Name + "." + m.Name
	}
}

// defaultGlobalID joins the name parts before the reserved-word check so
// only the whole type name is ever suffixed.
func defaultGlobalID(m *Model, namer *naming.Namer) string {
	switch {
	case m.IsComponent():
		category := m.Category
		if category == "" {
			category = "default"
		}
		return namer.ToGraphQLTypeName("component_" + category + "_" + m.Name)
	case m.Plugin != "":
		return namer.ToGraphQLTypeName(m.Plugin + "_" + m.Name)
	default:
		return namer.ToGraphQLTypeName(m.Name)
	}
}

func (r *Registry) deriveAssociations(m *Model) ([]Association, error) {
	var out []Association
	for _, attr := range m.Attributes {
		if attr.Type != TypeRelation {
			continue
		}
		nature := attr.Relation
		if nature == "" {
			nature = NatureOneWay
		}
		if !nature.Valid() {
			return nil, fmt.Errorf("model %q attribute %q: unknown relation nature %q", m.UID, attr.Name, nature)
		}
		target := attr.Target
		if nature.TargetIsMorph() || attr.IsMorphTarget() {
			target = WildcardTarget
		} else {
			related, ok := r.Lookup(target)
			if !ok {
				return nil, fmt.Errorf("model %q attribute %q: %w %q", m.UID, attr.Name, ErrUnknownModel, target)
			}
			target = related.UID
			attr.Target = related.UID
		}
		out = append(out, Association{
			Alias:       attr.Name,
			Nature:      nature,
			Cardinality: nature.Cardinality(),
			Dominant:    attr.Dominant,
			Via:         attr.Via,
			Target:      target,
		})
	}
	return out, nil
}

// Models returns collection and single types in registration order.
func (r *Registry) Models() []*Model {
	return append([]*Model(nil), r.models...)
}

// Components returns components in registration order.
func (r *Registry) Components() []*Model {
	return append([]*Model(nil), r.components...)
}

// Model returns a collection or single type by UID.
func (r *Registry) Model(uid string) (*Model, bool) {
	m, ok := r.byUID[uid]
	if !ok || m.IsComponent() {
		return nil, false
	}
	return m, true
}

// Component returns a component by UID.
func (r *Registry) Component(uid string) (*Model, bool) {
	m, ok := r.byUID[uid]
	if !ok || !m.IsComponent() {
		return nil, false
	}
	return m, true
}

// Lookup returns a model or component by UID. Bare application model names
// ("article") are accepted as shorthand for "application::article.article".
func (r *Registry) Lookup(uid string) (*Model, bool) {
	if m, ok := r.byUID[uid]; ok {
		return m, true
	}
	if !strings.Contains(uid, "::") && !strings.Contains(uid, ".") {
		m, ok := r.byUID["application::"+uid+"."+uid]
		return m, ok
	}
	return nil, false
}

// ByGlobalID returns the model or component exposed under a GraphQL type name.
func (r *Registry) ByGlobalID(globalID string) (*Model, bool) {
	m, ok := r.byGlobalID[globalID]
	return m, ok
}
