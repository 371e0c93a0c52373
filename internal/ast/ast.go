// Package ast defines the structured query form consumed by
// internal/txn.Transaction.Execute. A text query language (the
// Graql/Cypher-style surface spec.md §1 places out of scope) would
// parse down to exactly this shape; this package is the boundary the
// eventual parser compiles to, modeled on how pkg/cypher's executor
// walks an already-tokenized pattern rather than re-deriving intent
// from raw text at every clause.
package ast

import "github.com/nornicgraph/nornicgraph/internal/graph"

// Var names a variable bound within one Query: either to a concept
// matched against the existing graph, or to a concept created by an
// Insert pattern.
type Var string

// StatementKind discriminates the five query forms spec.md §4.3 names
// for Transaction.Execute.
type StatementKind int

const (
	KindDefine StatementKind = iota
	KindInsert
	KindGet
	KindDelete
	KindAggregate
)

// SchemaDecl declares one schema concept, optionally wiring its
// structural relationships (relates/plays/key) in the same statement,
// the way a single `define` clause does in the original query
// language.
type SchemaDecl struct {
	Var      Var
	Label    string
	Kind     graph.SchemaKind
	Super    Var // zero value: default super for Kind (root thing, or an existing label via SuperLabel)
	SuperLabel string // alternative to Super: name an already-committed supertype by label
	Abstract bool
	DataType graph.DataType // meaningful only for KindAttributeType

	Relates []Var          // RelationType only: roles it relates to, by var bound earlier in Define
	Plays   []PlaysDecl    // roles this type's instances may play
	Keys    []Var          // attribute types declared as a key for this type

	When, Then graph.Conjunction // KindRule only
}

// PlaysDecl is one play declaration within a SchemaDecl.
type PlaysDecl struct {
	Role     Var
	Required bool
}

// Pattern is one statement within a Match or Insert clause: bind Var
// to an instance, constrained by type and optionally by value, has-
// edges, and role-player edges.
type Pattern struct {
	Var       Var
	TypeLabel string      // instances of this type (and its subtypes)
	Value     interface{} // attribute patterns: the stored value to match or insert
	Has       []HasPattern
	Rel       []RolePattern
}

// HasPattern matches or creates an attribute ownership edge from the
// enclosing Pattern's Var to an attribute instance.
type HasPattern struct {
	AttrTypeLabel string
	Value         interface{} // set directly, or...
	Var           Var         // ...bound to another pattern's attribute Var
}

// RolePattern matches or creates a role-player casting within a
// relation Pattern.
type RolePattern struct {
	RoleLabel string
	Player    Var
}

// AggregateOp is a supported aggregate function.
type AggregateOp int

const (
	AggCount AggregateOp = iota
	AggSum
	AggMean
)

// AggregateSpec describes one Aggregate query's reduction: Op applied
// over the values bound to Var by the Match clause.
type AggregateSpec struct {
	Op  AggregateOp
	Var Var
}

// Query is the structured form Transaction.Execute consumes.
type Query struct {
	Kind StatementKind

	Define []SchemaDecl

	Match  []Pattern // Get, Delete, Aggregate: the conjunction to match
	Insert []Pattern // Insert: patterns to match-or-create

	DeleteVars []Var // Delete: which matched vars to remove

	Aggregate *AggregateSpec // Aggregate
}

// Binding maps each Var in a Query to the concept it resolved to.
type Binding map[Var]graph.ConceptID

// Result is what Transaction.Execute returns for one Query.
type Result struct {
	// Bindings holds one entry per match found (Get, Delete,
	// Aggregate). Define and Insert leave it empty.
	Bindings []Binding

	// Created lists concepts newly minted by a Define or Insert query.
	Created map[Var]graph.ConceptID

	// Aggregate holds the reduced value for an Aggregate query.
	Aggregate float64
}
