// Package graph holds the arena-based representation of a keyspace's
// schema and instance graph: SchemaConcept variants (Thing, EntityType,
// RelationType, AttributeType, Role, Rule) and Thing instance variants
// (Entity, Attribute, Relation), addressed by ConceptID rather than by
// pointer so the graph stays stable across schema edits — per spec.md
// §9's "Cyclic schema references" design note.
package graph

// ConceptID identifies any concept — schema or instance — within one
// keyspace's arena. Minted by the ID Block Pool (internal/idpool).
type ConceptID uint64

// NoConcept is the zero value: "no such concept" (e.g. a type with no
// supertype, which in this model is only the root Thing).
const NoConcept ConceptID = 0

// SchemaKind discriminates the SchemaConcept variants of spec.md §3.
type SchemaKind int

const (
	KindThing SchemaKind = iota
	KindEntityType
	KindRelationType
	KindAttributeType
	KindRole
	KindRule
)

func (k SchemaKind) String() string {
	switch k {
	case KindThing:
		return "thing"
	case KindEntityType:
		return "entity"
	case KindRelationType:
		return "relation"
	case KindAttributeType:
		return "attribute"
	case KindRole:
		return "role"
	case KindRule:
		return "rule"
	default:
		return "unknown"
	}
}

// DataType is the value type of an AttributeType.
type DataType int

const (
	DataTypeUnknown DataType = iota
	DataTypeString
	DataTypeLong
	DataTypeDouble
	DataTypeBoolean
	DataTypeDateTime
)

// SchemaConcept is a node of the schema graph. Every non-root concept
// has exactly one direct Super; every chain terminates at KindThing.
type SchemaConcept struct {
	ID    ConceptID
	Label string
	Kind  SchemaKind
	Super ConceptID // NoConcept only for the root Thing

	Abstract bool
	DataType DataType // meaningful only for KindAttributeType

	// Plays maps a Role's ConceptID to whether that play is required,
	// for an EntityType/RelationType/AttributeType. Set directly on
	// this concept (not inherited) — ancestor plays are reached by
	// walking Super.
	Plays map[ConceptID]bool

	// Relates is the set of Role ConceptIDs a RelationType directly
	// exposes.
	Relates map[ConceptID]bool

	// Keys is the set of AttributeType ConceptIDs declared as a key
	// for this EntityType/RelationType (spec.md §3's "key role on
	// (type T, attribute type A)", modeled directly on the owner type
	// rather than as a synthesized implicit relation/role pair — see
	// DESIGN.md).
	Keys map[ConceptID]bool

	// Rule holds the rule-specific fields; nil unless Kind == KindRule.
	Rule *RuleBody
}

// RuleBody holds a rule's when/then patterns and the hypothesis/
// conclusion sets populated as a side effect of schema validation
// check 8 (see internal/schema).
type RuleBody struct {
	When Conjunction
	Then Conjunction

	PositiveHypothesis map[ConceptID]bool
	NegativeHypothesis map[ConceptID]bool
	Conclusion         map[ConceptID]bool
}

// Atom references a schema type, optionally negated, within a rule
// pattern. The query-language parser (out of scope) is responsible
// for reducing a real Graql pattern down to this structured form;
// this module consumes already-structured when/then patterns.
type Atom struct {
	Type    ConceptID
	Negated bool
}

// Conjunction is a set of Atoms ANDed together. Spec.md §3 requires
// when/then to each be a single conjunction — no disjunction — so
// there is no Disjunction type in this model.
type Conjunction []Atom

// InstanceKind discriminates the Thing instance variants of spec.md §3.
type InstanceKind int

const (
	KindEntity InstanceKind = iota
	KindAttribute
	KindRelation
)

// Thing is an instance: an Entity, Attribute, or Relation.
type Thing struct {
	ID     ConceptID
	TypeID ConceptID
	Kind   InstanceKind

	// Value holds the stored value for a KindAttribute instance.
	Value interface{}

	// Castings holds the role-player edges for a KindRelation instance.
	Castings []Casting

	// Attributes holds this instance's "has" edges: attribute-type id
	// to the attribute instance ids it owns (including key attributes).
	Attributes map[ConceptID][]ConceptID

	// ShardID is the current-shard this instance was attached to at
	// creation time (spec.md §3 "Shard").
	ShardID int

	// Inferred marks a concept with inference-only provenance. Per
	// spec.md §4.3's "Inferred-concept persistence rule", an inferred
	// concept is dropped at commit unless ReferencedByUser.
	Inferred         bool
	ReferencedByUser bool
}

// Casting is one edge of a Relation: (role, role_player).
type Casting struct {
	Role     ConceptID
	Relation ConceptID
	Player   ConceptID
}
