package schema

import "fmt"

// Error message templates, grounded on
// original_source/server/ValidateGlobalRules.java's ErrorMessage
// constants (VALIDATION_CASTING, VALIDATION_RELATION_TYPE, etc.),
// kept as Go format strings rather than a resource bundle.
const (
	msgCasting                  = "thing of type %q (id %d) is not allowed to play role %q"
	msgRelationCastingLoopFail  = "relation %d: role %q is not in the relates set of relation type %q"
	msgRoleMissingRelationType  = "role %q is not related-to by any relation type"
	msgRelationTypeNoRoles      = "relation type %q has no roles"
	msgRelationTypesRolesSchema = "role %q of relation type %q has no matching %s role on relation type %q"
	msgRequiredRelation         = "thing (id %d) of type %q must play exactly one relation in required role %q, found %d"
	msgKeyNotExactlyOne         = "thing (id %d) must have exactly one value for key attribute type %q, found %d"
	msgKeyDuplicateOwner        = "attribute type %q value %v is already owned by another instance of type %q (or a subtype)"
	msgRelationNoRolePlayers    = "relation %d of type %q has no role players"
	msgRuleHeadNonAtomic        = "rule %q: then must be a single atom"
	msgRuleMissingElement       = "rule %q: %s refers to unknown type id %d"
	msgRuleGraphNotStratifiable = "rule graph is not stratifiable: negative cycle through types %v"
)

func f(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}
