// Package planner converts model queries into parameterized SQL statements.
// It compiles where inputs into predicates, order inputs into a strict total
// order, and plans the count and page statements of a connection, plus the
// entity lookups used to resolve a row's entity.
package planner
