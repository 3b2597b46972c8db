// Package errors provides structured error types for the framecodec engines.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: member path, Go type, wire type, input
// offset and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
//		Path("user", "age").
//		GoType("int32").
//		WireType("bytes").
//		Offset(17).
//		Detail("cannot decode bytes into an integer").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Syntax(errors.PhaseDecode, 42, ']', "value")
//	err := errors.PrematureEnd(errors.PhaseStream, 128, 3)
//
// All errors implement the standard error interface and support errors.Is/As.
// Truncated input (KindPrematureEnd) is always reported separately from
// malformed input (KindSyntax).
package errors
