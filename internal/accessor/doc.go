// Package accessor defines the accessor-chain execution model: the linked
// per-segment nodes that represent one compiled navigational path, the
// contract every execution strategy honors, and the collaborator interfaces the
// strategies consume.
//
// # Overview
//
// A path such as
//
//	user.?address.city
//	orders[0].total()
//	new Point(1, 2).{ x = 3 }
//
// is split by a parser into segments and turned by Builder into a chain of
// Nodes. A chain is built once, typically against a representative input, and
// is immutable afterwards: optimizing a call site swaps the strategy that wraps
// the chain, never the chain itself.
//
// # Node kinds
//
//   - KindProperty: field, getter or map key read on the incoming value. The
//     first property of a chain (Root) consults the scope before the target.
//   - KindMethod: method call with positionally bound argument statements.
//   - KindIndex: map, slice, array or string index; the index is a literal
//     (Const) or a statement evaluated per call.
//   - KindWith: a with-block that assigns several sub-paths on the incoming
//     value and yields the value itself.
//   - KindConstructor: instantiates a registered type; ignores the incoming value.
//   - KindNullSafe: guard inserted after a nullable segment. A nil incoming value
//     stops the chain and the whole evaluation yields nil; no later node runs.
//   - KindStatic: a registered static value; ignores the incoming value.
//   - KindNotify: fires the configured listeners before the next property runs
//     and passes the incoming value through unchanged.
//
// # Strategies
//
// An Accessor is any realization of a chain: the interpreted strategy (package
// interp) resolves every member through reflection on each call, the compiled
// strategy (package compiled) fixes member lookups once, and the adaptive
// accessor (package adaptive) profiles a call site and swaps between them. All
// three honor the same Get/Set/KnownEgressType contract and must produce the
// same values and the same error types for the same inputs.
//
// # Errors
//
//   - *PropertyAccessError: a segment could not be completed (member not found,
//     arity mismatch, nil intermediate value without a guard, host error).
//   - *CompilationNotSupportedError: raised only during specialization and
//     always recovered by the caller; it never escapes an evaluation.
//   - *convert.ConversionError and *scope.UnresolvableVariableError pass through.
package accessor
