// Package querylanguage provides the expression surface used to describe
// set-based mutations: predicates over entity members, value expressions
// for update selectors, and a text form that can be printed and parsed back.
//
//	p := querylanguage.And(
//		querylanguage.FieldGT("Quantity", 10),
//		querylanguage.FieldHasPrefix("Name", "A"),
//	)
//	p.String() // Quantity > 10 && has_prefix(Name, "A")
//
// Expressions are plain trees. They carry no knowledge of tables or
// dialects; resolving members against a mapping is done by the compiler.
package querylanguage
