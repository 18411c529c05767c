// Package errors provides structured error types for the wasm-fmu library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the path (class, method, slot) it refers to, the offending
// value and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseMarshal, errors.KindConversion).
//		Path("Adder", "get_boolean", "1").
//		Value(7).
//		Detail("boolean slot holds %d", 7).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.ProtocolViolation("DoStep", "Instantiated")
//	err := errors.ConfigNotFound(path, cause)
//
// Sentinels such as ErrProtocolViolation match every error of their kind:
//
//	if errors.Is(err, errors.ErrProtocolViolation) { ... }
//
// StatusOf translates an error into the status code reported across the ABI.
package errors
