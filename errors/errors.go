package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/wippyai/wasm-fmu/fmi2"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseResolve     Phase = "resolve"     // resource URI to path
	PhaseConfig      Phase = "config"      // side-car descriptor
	PhaseProtocol    Phase = "protocol"    // call ordering
	PhaseMarshal     Phase = "marshal"     // Go <-> guest memory
	PhaseInstantiate Phase = "instantiate" // component creation
	PhaseCall        Phase = "call"        // model method invocation
	PhaseRuntime     Phase = "runtime"     // runtime lifecycle
	PhaseABI         Phase = "abi"         // C entry points
)

// Kind categorizes the error
type Kind string

const (
	KindMalformedURI        Kind = "malformed_uri"
	KindUnresolvablePath    Kind = "unresolvable_path"
	KindConfigNotFound      Kind = "config_not_found"
	KindConfigMalformed     Kind = "config_malformed"
	KindProtocolViolation   Kind = "protocol_violation"
	KindConversion          Kind = "conversion_error"
	KindInstantiationFailed Kind = "instantiation_failed"
	KindCallFailed          Kind = "call_failed"
	KindUnsupported         Kind = "unsupported"
)

// Sentinels match any error of the same kind regardless of phase.
var (
	ErrMalformedURI        = &Error{Kind: KindMalformedURI}
	ErrUnresolvablePath    = &Error{Kind: KindUnresolvablePath}
	ErrConfigNotFound      = &Error{Kind: KindConfigNotFound}
	ErrConfigMalformed     = &Error{Kind: KindConfigMalformed}
	ErrProtocolViolation   = &Error{Kind: KindProtocolViolation}
	ErrConversion          = &Error{Kind: KindConversion}
	ErrInstantiationFailed = &Error{Kind: KindInstantiationFailed}
	ErrCallFailed          = &Error{Kind: KindCallFailed}
	ErrUnsupported         = &Error{Kind: KindUnsupported}
)

// Error is the structured error type used throughout the module
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a phase matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the path (class, method, slot) the error refers to
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// MalformedURI creates an error for a resource locator that is not a usable file URI
func MalformedURI(uri, detail string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindMalformedURI,
		Detail: fmt.Sprintf("%s: %q", detail, uri),
		Value:  uri,
	}
}

// UnresolvablePath creates an error for a decoded path that does not exist
func UnresolvablePath(path string, cause error) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindUnresolvablePath,
		Detail: fmt.Sprintf("path %q does not exist", path),
		Value:  path,
		Cause:  cause,
	}
}

// ConfigNotFound creates an error naming the expected descriptor location
func ConfigNotFound(path string, cause error) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindConfigNotFound,
		Detail: fmt.Sprintf("configuration file not found at %q", path),
		Value:  path,
		Cause:  cause,
	}
}

// ConfigMalformed creates an error for a descriptor that does not parse or validate
func ConfigMalformed(path, detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindConfigMalformed,
		Detail: fmt.Sprintf("%s: %s", path, detail),
		Value:  path,
		Cause:  cause,
	}
}

// ProtocolViolation creates an error for a call that is illegal in the current state
func ProtocolViolation(op, state string) *Error {
	return &Error{
		Phase:  PhaseProtocol,
		Kind:   KindProtocolViolation,
		Detail: fmt.Sprintf("%s is not allowed in state %s", op, state),
	}
}

// Conversion creates a marshaling error for a single value
func Conversion(path []string, detail string, value any) *Error {
	return &Error{
		Phase:  PhaseMarshal,
		Kind:   KindConversion,
		Path:   path,
		Detail: detail,
		Value:  value,
	}
}

// InstantiationFailed wraps the failure of one creation step
func InstantiationFailed(step string, cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindInstantiationFailed,
		Detail: step,
		Cause:  cause,
	}
}

// CallFailed wraps a trap or missing export raised by a model method
func CallFailed(class, method string, cause error) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindCallFailed,
		Path:   []string{class, method},
		Detail: "model call failed",
		Cause:  cause,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// StatusOf maps an error to the status reported at the ABI boundary.
// Errors that are not structured are reported as Error.
func StatusOf(err error) fmi2.Status {
	if err == nil {
		return fmi2.OK
	}
	var e *Error
	if !stderrors.As(err, &e) {
		return fmi2.Error
	}
	switch e.Kind {
	case KindProtocolViolation, KindCallFailed, KindUnsupported:
		return fmi2.Error
	default:
		return fmi2.Fatal
	}
}

// MissingImport represents a single unresolved import
type MissingImport struct {
	Module   string // e.g., "env"
	Function string // e.g., "abort"
}

// MissingImportsError is returned when a model imports functions the host does not provide
type MissingImportsError struct {
	Imports []MissingImport
}

// NewMissingImportsError creates an error from a list of "module#function" strings
func NewMissingImportsError(imports []string) *MissingImportsError {
	result := &MissingImportsError{
		Imports: make([]MissingImport, 0, len(imports)),
	}
	for _, imp := range imports {
		mod, fn := parseImportKey(imp)
		result.Imports = append(result.Imports, MissingImport{
			Module:   mod,
			Function: fn,
		})
	}
	return result
}

func parseImportKey(key string) (module, function string) {
	mod, fn, found := strings.Cut(key, "#")
	if found {
		return mod, fn
	}
	return key, ""
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[instantiate] missing_import: no imports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("missing %d host function(s):\n", len(e.Imports)))

	byModule := make(map[string][]string)
	var order []string
	for _, imp := range e.Imports {
		if _, exists := byModule[imp.Module]; !exists {
			order = append(order, imp.Module)
		}
		byModule[imp.Module] = append(byModule[imp.Module], imp.Function)
	}

	for _, mod := range order {
		b.WriteString("\n  ")
		b.WriteString(mod)
		b.WriteString(":\n")
		for _, fn := range byModule[mod] {
			b.WriteString("    - ")
			b.WriteString(fn)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingImportsError) Is(target error) bool {
	_, ok := target.(*MissingImportsError)
	return ok
}
