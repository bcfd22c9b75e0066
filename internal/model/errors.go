package model

// Kind is the §7 error taxonomy. It drives whether the dispatcher disconnects
// the session after replying (see server/dispatch.go).
type Kind string

const (
	KindProtocol    Kind = "protocol"
	KindAuth        Kind = "auth"
	KindPermission  Kind = "permission"
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindResource    Kind = "resource"
	KindSelfOp      Kind = "self-op"
	KindAdminProtect Kind = "admin-protection"
)

// Error is a structured handler failure. Handlers return *Error instead of a
// bare error so the dispatcher can apply the §7 disconnect rules; the
// dispatcher sends Message to the wire verbatim, so a handler that wants a
// localized reply must render it itself via i18n.T(sess.Locale(), key)
// before constructing the Error (§4.3/§7 "Localization").
type Error struct {
	Kind    Kind
	Message string
	// ErrorKind is the machine-readable error_kind field (§4.4 Files,
	// §4.5 TransferEngine) for operations that expose one; empty otherwise.
	ErrorKind string
}

func (e *Error) Error() string { return e.Message }

func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func NewFileError(kind Kind, message, errorKind string) *Error {
	return &Error{Kind: kind, Message: message, ErrorKind: errorKind}
}

// Disconnect reports whether, per §7's taxonomy table, an error of this kind
// (in the given context) should terminate the connection. context mirrors
// the exceptions spec.md calls out: broadcast/self-rule validation and
// login-time validators are stricter than ordinary chat/admin validation.
func (e *Error) Disconnect(strictValidation bool) bool {
	switch e.Kind {
	case KindAuth:
		return true
	case KindValidation:
		return strictValidation
	default:
		return false
	}
}
