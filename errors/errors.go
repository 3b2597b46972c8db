package errors

import (
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseRegister Phase = "register" // type registration
	PhaseEncode   Phase = "encode"   // Go value to wire
	PhaseDecode   Phase = "decode"   // wire to Go value
	PhaseStream   Phase = "stream"   // reader/writer pumping
)

// Kind categorizes the error
type Kind string

const (
	KindSyntax        Kind = "syntax"
	KindUnknownMember Kind = "unknown_member"
	KindUnknownType   Kind = "unknown_type"
	KindTypeCoercion  Kind = "type_coercion"
	KindPrematureEnd  Kind = "premature_end"
	KindTypeMismatch  Kind = "type_mismatch"
	KindUnsupported   Kind = "unsupported"
	KindOverflow      Kind = "overflow"
	KindInvalidUTF8   Kind = "invalid_utf8"
	KindNilPointer    Kind = "nil_pointer"
	KindInvalidEnum   Kind = "invalid_enum"
	KindInvalidData   Kind = "invalid_data"
	KindRegistration  Kind = "registration"
	KindCanceled      Kind = "canceled"
)

// NoOffset marks an error that is not tied to a position in the input.
const NoOffset = -1

// Error is the structured error type used throughout the module
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	GoType   string
	WireType string
	Detail   string
	Path     []string
	Offset   int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Offset >= 0 {
		b.WriteString(" @")
		b.WriteString(strconv.Itoa(e.Offset))
	}

	if e.GoType != "" || e.WireType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.WireType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", wire type ")
			b.WriteString(e.WireType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("wire type ")
			b.WriteString(e.WireType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.WireType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
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

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase:  phase,
			Kind:   kind,
			Offset: NoOffset,
		},
	}
}

// Path sets the member path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// WireType sets the wire type name
func (b *Builder) WireType(t string) *Builder {
	b.err.WireType = t
	return b
}

// Offset sets the input offset
func (b *Builder) Offset(off int) *Builder {
	b.err.Offset = off
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

// Syntax creates a syntax error for an unexpected character or byte.
func Syntax(phase Phase, offset int, got byte, expected string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindSyntax,
		Offset: offset,
		Value:  got,
		Detail: fmt.Sprintf("unexpected %s, expected %s", quoteByte(got), expected),
	}
}

// PrematureEnd creates an error for input that ended while more bytes were required.
func PrematureEnd(phase Phase, offset, needed int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindPrematureEnd,
		Offset: offset,
		Value:  needed,
		Detail: fmt.Sprintf("input ended with %d more byte(s) required", needed),
	}
}

// Coercion creates an error for text that cannot convert to the declared type.
func Coercion(phase Phase, path []string, text, goType string, cause error) *Error {
	preview := text
	if len(preview) > 32 {
		preview = preview[:32] + "..."
	}
	return &Error{
		Phase:  phase,
		Kind:   KindTypeCoercion,
		Path:   path,
		GoType: goType,
		Offset: NoOffset,
		Value:  text,
		Detail: fmt.Sprintf("cannot convert %q", preview),
		Cause:  cause,
	}
}

// UnknownType creates an error for a type id or name the registry cannot resolve.
func UnknownType(phase Phase, path []string, tag any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnknownType,
		Path:   path,
		Offset: NoOffset,
		Value:  tag,
		Detail: fmt.Sprintf("type tag %v is not registered", tag),
	}
}

// UnknownMember creates an unknown member error
func UnknownMember(phase Phase, path []string, member any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnknownMember,
		Path:   path,
		Offset: NoOffset,
		Value:  member,
		Detail: fmt.Sprintf("unknown member %v", member),
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, wireType string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindTypeMismatch,
		Path:     path,
		GoType:   goType,
		WireType: wireType,
		Offset:   NoOffset,
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, path []string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Path:   path,
		Offset: NoOffset,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Offset: NoOffset,
		Detail: what,
	}
}

// NilPointer creates a nil pointer error
func NilPointer(phase Phase, path []string, goType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNilPointer,
		Path:   path,
		GoType: goType,
		Offset: NoOffset,
		Detail: "nil pointer",
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, limit string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		Offset: NoOffset,
		Detail: fmt.Sprintf("value %v exceeds %s", value, limit),
		Value:  value,
	}
}

// InvalidEnum creates an invalid enum value error
func InvalidEnum(phase Phase, path []string, value any, enumType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidEnum,
		Path:   path,
		GoType: enumType,
		Offset: NoOffset,
		Detail: fmt.Sprintf("invalid enum value %v for %s", value, enumType),
		Value:  value,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Offset: NoOffset,
		Detail: detail,
	}
}

// Registration creates a registration error
func Registration(goType, detail string) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindRegistration,
		GoType: goType,
		Offset: NoOffset,
		Detail: detail,
	}
}

// Canceled wraps a context error observed between buffer fills.
func Canceled(phase Phase, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindCanceled,
		Offset: NoOffset,
		Detail: "operation canceled",
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Offset: NoOffset,
		Detail: detail,
		Cause:  cause,
	}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Cause
	}
	return false
}

func quoteByte(b byte) string {
	if b >= 0x20 && b < 0x7f {
		return strconv.QuoteRune(rune(b))
	}
	return fmt.Sprintf("byte 0x%02x", b)
}
