package domain

import "errors"

// Identity and role validation errors.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveUser       = errors.New("user is inactive")
	ErrRoleNotFound       = errors.New("role not found")
	ErrRoleExists         = errors.New("role already exists")
	ErrInvalidRoleName    = errors.New("invalid role name")
	ErrBuiltinRole        = errors.New("cannot delete built-in roles")
	ErrLastAdmin          = errors.New("cannot remove the last admin role")
	ErrInvalidPermission  = errors.New("invalid permission")
)

// Credential errors.
var (
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token has expired")
)

// Authorization errors. The gate only ever surfaces ErrUnauthenticated or
// ErrForbidden; ErrPolicyEvaluation never leaves the gate.
var (
	ErrUnauthenticated  = errors.New("authentication required")
	ErrForbidden        = errors.New("forbidden")
	ErrPolicyEvaluation = errors.New("policy evaluation failed")
)

// Document and QA errors.
var (
	ErrNotPDF           = errors.New("file must be a PDF")
	ErrEmptyDocument    = errors.New("document contains no extractable text")
	ErrDocumentNotFound = errors.New("no documents found")
	ErrEmptyQuery       = errors.New("query must not be empty")
)

// AuthKind distinguishes the two caller-visible gate failures.
type AuthKind int

const (
	Unauthenticated AuthKind = iota + 1
	Forbidden
)

func (k AuthKind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// AuthError is the normalized rejection returned by the authorization gate.
type AuthError struct {
	Kind   AuthKind
	Action string
	Cause  error
}

func (e *AuthError) Error() string {
	if e.Kind == Forbidden {
		return "Not authorized to perform " + e.Action
	}
	return "Not authenticated"
}

// Unwrap exposes the kind sentinel and the underlying cause to errors.Is.
func (e *AuthError) Unwrap() []error {
	kind := ErrUnauthenticated
	if e.Kind == Forbidden {
		kind = ErrForbidden
	}
	if e.Cause == nil {
		return []error{kind}
	}
	return []error{kind, e.Cause}
}
