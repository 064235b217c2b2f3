// Package filter turns declarative JSON filters into parameterized PostgreSQL
// WHERE fragments.
//
// A raw filter document is first normalized into a small tree of [Node] values
// ([FieldCondition] leaves and [LogicalGroup] combinators). The tree is then
// compiled by a [Compiler], which threads a [ParameterAllocator] through every
// leaf so that placeholders ($1, $2, ...) line up with the returned parameter
// slice in SQL text order.
//
// Filter grammar:
//
//	Filter      := { field: Scalar | OperatorMap, ... }
//	             | { "and": [Filter, ...] } | { "or": [Filter, ...] } | { "not": Filter }
//	OperatorMap := { operator: Scalar | [Scalar, ...] | GeoLiteral,
//	                 "caseSensitive"?: bool, "negate"?: bool }
//
// A field may address a JSONB path with "->" separators, for example
// "metadata->address->city". Values never appear in SQL text; they are always
// bound as parameters. Identifiers that do not match the safe identifier
// pattern are rejected with a security_error before any SQL is produced.
package filter
