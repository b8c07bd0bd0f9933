// Package contentmodel holds the content-type registry the schema compiler reads from.
// Models, components and their attributes are declared once at boot (in code or YAML
// descriptors) and are immutable afterwards.
package contentmodel

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Kind classifies a content type.
type Kind string

const (
	KindCollectionType Kind = "collectionType"
	KindSingleType     Kind = "singleType"
	KindComponent      Kind = "component"
)

// AttributeType is the declared type of an attribute.
type AttributeType string

const (
	TypeString      AttributeType = "string"
	TypeText        AttributeType = "text"
	TypeRichText    AttributeType = "richtext"
	TypeEmail       AttributeType = "email"
	TypePassword    AttributeType = "password"
	TypeUID         AttributeType = "uid"
	TypeBoolean     AttributeType = "boolean"
	TypeInteger     AttributeType = "integer"
	TypeBigInteger  AttributeType = "biginteger"
	TypeFloat       AttributeType = "float"
	TypeDecimal     AttributeType = "decimal"
	TypeJSON        AttributeType = "json"
	TypeDate        AttributeType = "date"
	TypeTime        AttributeType = "time"
	TypeDateTime    AttributeType = "datetime"
	TypeTimestamp   AttributeType = "timestamp"
	TypeEnumeration AttributeType = "enumeration"
	TypeRelation    AttributeType = "relation"
	TypeComponent   AttributeType = "component"
	TypeDynamicZone AttributeType = "dynamiczone"
)

// IsScalar reports whether values of this type are stored inline on the record.
func (t AttributeType) IsScalar() bool {
	switch t {
	case TypeRelation, TypeComponent, TypeDynamicZone:
		return false
	default:
		return true
	}
}

// Attribute describes one field of a model.
type Attribute struct {
	Name        string        `yaml:"-"`
	Type        AttributeType `yaml:"type"`
	Required    bool          `yaml:"required"`
	Private     bool          `yaml:"private"`
	Description string        `yaml:"description"`

	// Enumeration
	Enum     []string `yaml:"enum"`
	EnumName string   `yaml:"enumName"`

	// Relation
	Relation Nature `yaml:"relation"`
	Target   string `yaml:"target"`
	Via      string `yaml:"via"`
	Dominant bool   `yaml:"dominant"`

	// Component / dynamic zone
	Component  string   `yaml:"component"`
	Components []string `yaml:"components"`
	Repeatable bool     `yaml:"repeatable"`
}

// IsMorphTarget reports whether the relation target cannot be statically determined.
func (a *Attribute) IsMorphTarget() bool {
	return a.Target == "" || a.Target == WildcardTarget
}

// Attributes is an ordered attribute list. It decodes from a YAML mapping and keeps
// the declaration order, which drives field order in the generated SDL.
type Attributes []*Attribute

// Get returns the attribute with the given name, or nil.
func (a Attributes) Get(name string) *Attribute {
	for _, attr := range a {
		if attr.Name == name {
			return attr
		}
	}
	return nil
}

// Names returns attribute names in declaration order.
func (a Attributes) Names() []string {
	names := make([]string, 0, len(a))
	for _, attr := range a {
		names = append(names, attr.Name)
	}
	return names
}

// UnmarshalYAML decodes a mapping of name -> attribute preserving key order.
func (a *Attributes) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("attributes must be a mapping, got %s", yamlKindName(node.Kind))
	}
	out := make(Attributes, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		var attr Attribute
		if err := node.Content[i+1].Decode(&attr); err != nil {
			return fmt.Errorf("attribute %q: %w", name, err)
		}
		attr.Name = name
		out = append(out, &attr)
	}
	*a = out
	return nil
}

func yamlKindName(kind yaml.Kind) string {
	switch kind {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	case yaml.DocumentNode:
		return "document"
	default:
		return "unknown"
	}
}

// Options carries per-model schema options.
type Options struct {
	// Timestamps lists the created/updated field names, in that order.
	Timestamps []string `yaml:"timestamps"`
	// PrivateAttributes are hidden from the API in addition to attributes marked private.
	PrivateAttributes []string `yaml:"privateAttributes"`
}

// Model describes a collection type, single type or component.
type Model struct {
	UID            string     `yaml:"uid"`
	Name           string     `yaml:"name"`
	GlobalID       string     `yaml:"globalId"`
	CollectionName string     `yaml:"collectionName"`
	PrimaryKey     string     `yaml:"primaryKey"`
	Kind           Kind       `yaml:"kind"`
	Plugin         string     `yaml:"plugin"`
	Category       string     `yaml:"category"`
	Description    string     `yaml:"description"`
	Attributes     Attributes `yaml:"attributes"`
	Options        Options    `yaml:"options"`

	// Associations is derived from relation attributes at registration time.
	Associations []Association `yaml:"-"`
}

// IsCollectionType reports whether the model is a collection type.
func (m *Model) IsCollectionType() bool { return m.Kind == KindCollectionType }

// IsSingleType reports whether the model is a single type.
func (m *Model) IsSingleType() bool { return m.Kind == KindSingleType }

// IsComponent reports whether the model is a component.
func (m *Model) IsComponent() bool { return m.Kind == KindComponent }

// Attribute returns the named attribute, or nil.
func (m *Model) Attribute(name string) *Attribute {
	return m.Attributes.Get(name)
}

// Association returns the association for the given alias.
func (m *Model) Association(alias string) (Association, bool) {
	for _, assoc := range m.Associations {
		if assoc.Alias == alias {
			return assoc, true
		}
	}
	return Association{}, false
}

// IsPrivate reports whether an attribute is hidden by the model itself.
func (m *Model) IsPrivate(name string) bool {
	if attr := m.Attribute(name); attr != nil && attr.Private {
		return true
	}
	for _, private := range m.Options.PrivateAttributes {
		if private == name {
			return true
		}
	}
	return false
}

// TimestampFields returns the configured created/updated field names.
func (m *Model) TimestampFields() []string {
	out := make([]string, 0, len(m.Options.Timestamps))
	for _, name := range m.Options.Timestamps {
		if name != "" && m.Attribute(name) == nil {
			out = append(out, name)
		}
	}
	return out
}

// Scope returns the action scope of the model: the plugin name or "application".
func (m *Model) Scope() string {
	if m.Plugin != "" {
		return "plugin::" + m.Plugin
	}
	return "application"
}
