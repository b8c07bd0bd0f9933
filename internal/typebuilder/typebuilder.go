// Package typebuilder converts content-model attributes into SDL type expressions
// and emits the input, payload, enum and dynamic-zone definitions derived from a model.
package typebuilder

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"content-graphql/internal/contentmodel"
	"content-graphql/internal/naming"
	"content-graphql/internal/sdl"
)

// ErrUnknownComponent is returned when a component or dynamic-zone attribute
// references a component that is not registered.
var ErrUnknownComponent = errors.New("unknown component")

// RootType is the root operation type a type expression is generated for.
type RootType string

const (
	RootQuery    RootType = "query"
	RootMutation RootType = "mutation"
)

// Action is the mutation action a type expression is generated for.
type Action string

const (
	ActionNone   Action = ""
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// MorphType is the union every polymorphic relation resolves to.
const MorphType = "Morph"

// AttributeEnabled reports whether an attribute is exposed by the API.
type AttributeEnabled func(model *contentmodel.Model, attr string) bool

// InputOptions tunes GenerateInputModel.
type InputOptions struct {
	// AllowIDs adds `id: ID` to the edit input so nested components can be matched.
	AllowIDs bool
}

var enumValuePattern = regexp.MustCompile(`^[_A-Za-z][_0-9A-Za-z]*$`)

// Builder turns model attributes into SDL fragments. It holds no mutable state.
type Builder struct {
	registry *contentmodel.Registry
	namer    *naming.Namer
	enabled  AttributeEnabled
}

// New creates a Builder. When enabled is nil, every non-private attribute is exposed.
func New(registry *contentmodel.Registry, namer *naming.Namer, enabled AttributeEnabled) *Builder {
	if namer == nil {
		namer = naming.Default()
	}
	if enabled == nil {
		enabled = func(model *contentmodel.Model, attr string) bool {
			return !model.IsPrivate(attr)
		}
	}
	return &Builder{registry: registry, namer: namer, enabled: enabled}
}

// AttributeEnabled reports whether attr of model is exposed.
func (b *Builder) AttributeEnabled(model *contentmodel.Model, attr string) bool {
	return b.enabled(model, attr)
}

// ConvertType returns the SDL type expression of one attribute.
func (b *Builder) ConvertType(attr *contentmodel.Attribute, model *contentmodel.Model, attrName string, root RootType, action Action) (string, error) {
	required := ""
	if attr.Required && action != ActionUpdate {
		required = "!"
	}

	switch attr.Type {
	case contentmodel.TypeComponent:
		component, ok := b.registry.Component(attr.Component)
		if !ok {
			return "", fmt.Errorf("%s.%s: %w %q", model.GlobalID, attrName, ErrUnknownComponent, attr.Component)
		}
		typeName := component.GlobalID
		if root == RootMutation {
			typeName = b.InputName(component.GlobalID)
			if action == ActionUpdate {
				typeName = "edit" + typeName
			}
		}
		if attr.Repeatable {
			typeName = "[" + typeName + "]"
		}
		return typeName + required, nil

	case contentmodel.TypeDynamicZone:
		typeName := b.DynamicZoneName(model, attrName)
		if root == RootMutation {
			typeName += "Input!"
		}
		return "[" + typeName + "]" + required, nil

	case contentmodel.TypeRelation:
		return b.relationType(attr, model, attrName, root), nil
	}

	return b.scalarType(attr, model, attrName) + required, nil
}

func (b *Builder) scalarType(attr *contentmodel.Attribute, model *contentmodel.Model, attrName string) string {
	switch attr.Type {
	case contentmodel.TypeBoolean:
		return "Boolean"
	case contentmodel.TypeInteger:
		return "Int"
	case contentmodel.TypeBigInteger:
		return "Long"
	case contentmodel.TypeFloat, contentmodel.TypeDecimal:
		return "Float"
	case contentmodel.TypeJSON:
		return "JSON"
	case contentmodel.TypeDate:
		return "Date"
	case contentmodel.TypeTime:
		return "Time"
	case contentmodel.TypeDateTime, contentmodel.TypeTimestamp:
		return "DateTime"
	case contentmodel.TypeEnumeration:
		return b.EnumName(attr, model, attrName)
	default:
		return "String"
	}
}

func (b *Builder) relationType(attr *contentmodel.Attribute, model *contentmodel.Model, attrName string, root RootType) string {
	assoc, ok := model.Association(attrName)
	if !ok {
		nature := attr.Relation
		if nature == "" {
			nature = contentmodel.NatureOneWay
		}
		assoc = contentmodel.Association{Alias: attrName, Nature: nature, Cardinality: nature.Cardinality(), Target: attr.Target}
	}

	typeName := MorphType
	if root == RootMutation {
		typeName = "ID"
	} else if !assoc.IsMorph() {
		if target, found := b.registry.Lookup(assoc.Target); found {
			typeName = target.GlobalID
		}
	}
	if assoc.IsCollection() {
		return "[" + typeName + "]"
	}
	return typeName
}

// IsNumeric reports whether the attribute maps to Int, Long or Float.
func IsNumeric(attr *contentmodel.Attribute) bool {
	switch attr.Type {
	case contentmodel.TypeInteger, contentmodel.TypeBigInteger, contentmodel.TypeFloat, contentmodel.TypeDecimal:
		return true
	}
	return false
}

// EnumName returns the enum type name of an enumeration attribute.
func (b *Builder) EnumName(attr *contentmodel.Attribute, model *contentmodel.Model, attrName string) string {
	if attr.EnumName != "" {
		return attr.EnumName
	}
	return "ENUM_" + naming.ConstantCase(model.GlobalID) + "_" + naming.ConstantCase(attrName)
}

// DynamicZoneName returns the union name of a dynamic-zone attribute.
func (b *Builder) DynamicZoneName(model *contentmodel.Model, attrName string) string {
	return model.GlobalID + naming.UpperFirst(b.namer.ToGraphQLFieldName(attrName)) + "DynamicZone"
}

// InputName returns the create input name of a model: `<Singular>Input`.
func (b *Builder) InputName(name string) string {
	return naming.UpperFirst(b.namer.Singularize(name)) + "Input"
}

// GenerateInputModel emits the create and edit input pair of a model.
func (b *Builder) GenerateInputModel(model *contentmodel.Model, name string, opts InputOptions) (string, error) {
	inputName := b.InputName(name)

	create := sdl.NewFields()
	edit := sdl.NewFields()
	if opts.AllowIDs {
		edit.Set(sdl.Field{Name: "id", Type: "ID"})
	}
	for _, attr := range model.Attributes {
		if !b.enabled(model, attr.Name) {
			continue
		}
		createType, err := b.ConvertType(attr, model, attr.Name, RootMutation, ActionCreate)
		if err != nil {
			return "", err
		}
		editType, err := b.ConvertType(attr, model, attr.Name, RootMutation, ActionUpdate)
		if err != nil {
			return "", err
		}
		create.Set(sdl.Field{Name: attr.Name, Type: createType})
		edit.Set(sdl.Field{Name: attr.Name, Type: editType})
	}

	if create.Len() == 0 {
		create.Set(sdl.Field{Name: "_", Type: "String"})
	}
	if edit.Len() == 0 {
		edit.Set(sdl.Field{Name: "_", Type: "String"})
	}
	return sdl.Object("input", inputName, "", create) + "\n" + sdl.Object("input", "edit"+inputName, "", edit), nil
}

// MutationName returns the root mutation name of an action: `createArticle`.
func (b *Builder) MutationName(name string, action Action) string {
	return string(action) + naming.UpperFirst(b.namer.Singularize(name))
}

// GenerateInputPayloadArguments emits the input and payload types of one mutation.
// Single types have no `where` selector and their delete mutation takes no input.
func (b *Builder) GenerateInputPayloadArguments(model *contentmodel.Model, name string, action Action) (string, error) {
	singular := b.namer.SingularQueryName(name)
	inputName := b.InputName(name)
	mutationName := b.MutationName(name, action)

	payload := sdl.Object("type", mutationName+"Payload", "", sdl.NewFields(sdl.Field{Name: singular, Type: model.GlobalID}))

	input := sdl.NewFields()
	switch action {
	case ActionCreate:
		input.Set(sdl.Field{Name: "data", Type: inputName})
	case ActionUpdate:
		if !model.IsSingleType() {
			input.Set(sdl.Field{Name: "where", Type: "InputID"})
		}
		input.Set(sdl.Field{Name: "data", Type: "edit" + inputName})
	case ActionDelete:
		if model.IsSingleType() {
			return payload, nil
		}
		input.Set(sdl.Field{Name: "where", Type: "InputID"})
	default:
		return "", fmt.Errorf("unsupported mutation action %q", action)
	}
	return sdl.Object("input", mutationName+"Input", "", input) + "\n" + payload, nil
}

// GenerateEnums emits an enum definition for every exposed enumeration attribute.
func (b *Builder) GenerateEnums(model *contentmodel.Model) (string, error) {
	var out strings.Builder
	for _, attr := range model.Attributes {
		if attr.Type != contentmodel.TypeEnumeration || !b.enabled(model, attr.Name) {
			continue
		}
		for _, value := range attr.Enum {
			if !enumValuePattern.MatchString(value) {
				return "", fmt.Errorf("%s.%s: invalid enum value %q", model.GlobalID, attr.Name, value)
			}
		}
		out.WriteString(sdl.Enum(b.EnumName(attr, model, attr.Name), attr.Enum))
	}
	return out.String(), nil
}

// GenerateDynamicZones emits a union and input scalar per exposed dynamic zone.
// A zone without components gets a placeholder object type instead of the union.
func (b *Builder) GenerateDynamicZones(model *contentmodel.Model) (string, error) {
	var out strings.Builder
	for _, attr := range model.Attributes {
		if attr.Type != contentmodel.TypeDynamicZone || !b.enabled(model, attr.Name) {
			continue
		}
		zone := b.DynamicZoneName(model, attr.Name)
		if len(attr.Components) == 0 {
			out.WriteString(sdl.Object("type", zone, "", sdl.NewFields(sdl.Field{Name: "_", Type: "Boolean"})))
		} else {
			members := make([]string, 0, len(attr.Components))
			for _, uid := range attr.Components {
				component, ok := b.registry.Component(uid)
				if !ok {
					return "", fmt.Errorf("%s.%s: %w %q", model.GlobalID, attr.Name, ErrUnknownComponent, uid)
				}
				members = append(members, component.GlobalID)
			}
			out.WriteString(sdl.Union(zone, members))
		}
		out.WriteString("scalar " + zone + "Input\n")
	}
	return out.String(), nil
}
