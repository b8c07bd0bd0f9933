package contentmodel

// WildcardTarget marks a polymorphic relation target.
const WildcardTarget = "*"

// Nature is the shape of a relation as seen from the declaring model.
type Nature string

const (
	NatureOneWay          Nature = "oneWay"
	NatureManyWay         Nature = "manyWay"
	NatureOneToOne        Nature = "oneToOne"
	NatureOneToMany       Nature = "oneToMany"
	NatureManyToOne       Nature = "manyToOne"
	NatureManyToMany      Nature = "manyToMany"
	NatureOneToManyMorph  Nature = "oneToManyMorph"
	NatureManyToManyMorph Nature = "manyToManyMorph"
	NatureManyMorphToOne  Nature = "manyMorphToOne"
	NatureManyMorphToMany Nature = "manyMorphToMany"
)

// Cardinality tells whether a relation field holds one record or a list.
type Cardinality string

const (
	CardinalityModel      Cardinality = "model"
	CardinalityCollection Cardinality = "collection"
)

// Valid reports whether n is a known nature.
func (n Nature) Valid() bool {
	switch n {
	case NatureOneWay, NatureManyWay, NatureOneToOne, NatureOneToMany, NatureManyToOne,
		NatureManyToMany, NatureOneToManyMorph, NatureManyToManyMorph,
		NatureManyMorphToOne, NatureManyMorphToMany:
		return true
	}
	return false
}

// Cardinality returns whether the declaring side sees one record or many.
func (n Nature) Cardinality() Cardinality {
	switch n {
	case NatureManyWay, NatureOneToMany, NatureManyToMany, NatureManyToManyMorph, NatureManyMorphToMany:
		return CardinalityCollection
	default:
		return CardinalityModel
	}
}

// IsMorph reports whether the relation involves a polymorphic side.
func (n Nature) IsMorph() bool {
	switch n {
	case NatureOneToManyMorph, NatureManyToManyMorph, NatureManyMorphToOne, NatureManyMorphToMany:
		return true
	}
	return false
}

// TargetIsMorph reports whether the declaring side points at a polymorphic target.
func (n Nature) TargetIsMorph() bool {
	return n == NatureManyMorphToOne || n == NatureManyMorphToMany
}

// Association is the resolved form of a relation attribute.
type Association struct {
	Alias       string
	Nature      Nature
	Cardinality Cardinality
	Dominant    bool
	Via         string
	// Target is the UID of the related model, or WildcardTarget for polymorphic relations.
	Target string
}

// IsCollection reports whether the association resolves to a list.
func (a Association) IsCollection() bool {
	return a.Cardinality == CardinalityCollection
}

// IsMorph reports whether the target is polymorphic.
func (a Association) IsMorph() bool {
	return a.Target == WildcardTarget || a.Nature.TargetIsMorph()
}

// OwnsForeignKey reports whether the declaring model stores the related id.
// Single-valued sides own the key; for one-to-one the dominant side (or the side
// without a via when neither is marked) owns it.
func (a Association) OwnsForeignKey() bool {
	switch a.Nature {
	case NatureOneWay, NatureManyToOne, NatureManyMorphToOne:
		return true
	case NatureOneToOne:
		return a.Dominant || a.Via == ""
	}
	return false
}

// UsesJoinTable reports whether both sides are multi-valued.
func (a Association) UsesJoinTable() bool {
	return a.Nature == NatureManyToMany || a.Nature == NatureManyWay
}
