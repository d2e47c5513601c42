package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-miniapp-session/internal/errors"
	"github.com/jrsteele09/go-miniapp-session/internal/utils"
)

type Kind int

const (
	KindTransport Kind = iota + 1
	KindTimeout
	KindAuthExpired
	KindAuthInvalid
	KindCredentialAbsent
	KindIdentityMismatch
	KindValidation
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindAuthExpired:
		return "auth_expired"
	case KindAuthInvalid:
		return "auth_invalid"
	case KindCredentialAbsent:
		return "credential_absent"
	case KindIdentityMismatch:
		return "identity_mismatch"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindTransport:
		return errors.ErrTransport
	case KindTimeout:
		return errors.ErrTimeout
	case KindAuthExpired:
		return errors.ErrAuthExpired
	case KindAuthInvalid:
		return errors.ErrAuthInvalid
	case KindCredentialAbsent:
		return errors.ErrCredentialAbsent
	case KindIdentityMismatch:
		return errors.ErrIdentityMismatch
	case KindValidation:
		return errors.ErrValidation
	case KindServer:
		return errors.ErrServer
	default:
		return errors.ErrInternal
	}
}

// FieldError is one structured validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the typed failure of every API call. errors.Is matches it against the
// sentinel of its Kind.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the Kind's sentinel. An expired session also matches ErrAuthInvalid.
func (e *Error) Is(target error) bool {
	if e.Kind == KindAuthExpired && target == errors.ErrAuthInvalid {
		return true
	}
	return target == e.Kind.sentinel()
}

// errorBody covers the error shapes the backend produces:
//
//	{"detail": "text"}
//	{"detail": [{"loc": ["body", "email"], "msg": "text", "type": "value_error"}]}
//	{"error": "code", "message": "text"}
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

type validationItem struct {
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

func parseErrorBody(body []byte) (string, []FieldError) {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return strings.TrimSpace(string(body)), nil
	}

	if len(eb.Detail) > 0 {
		var text string
		if err := json.Unmarshal(eb.Detail, &text); err == nil {
			return text, nil
		}
		var items []validationItem
		if err := json.Unmarshal(eb.Detail, &items); err == nil {
			fields := make([]FieldError, 0, len(items))
			for _, item := range items {
				fields = append(fields, FieldError{Field: fieldName(item.Loc), Message: item.Msg})
			}
			return "", fields
		}
	}
	if eb.Message != "" {
		return eb.Message, nil
	}
	return eb.Error, nil
}

// fieldName picks the last string element of loc, skipping the "body" prefix.
func fieldName(loc []any) string {
	names := utils.ToStringSlice(loc)
	for i := len(names) - 1; i >= 0; i-- {
		if names[i] != "body" {
			return names[i]
		}
	}
	return ""
}

func newStatusError(status int, body []byte) *Error {
	msg, fields := parseErrorBody(body)
	e := &Error{Status: status, Message: msg, Fields: fields}
	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindAuthInvalid
	case status >= http.StatusInternalServerError:
		e.Kind = KindServer
	default:
		e.Kind = KindValidation
	}
	return e
}

// Known backend messages mapped to stable user-facing text.
var knownMessages = []struct {
	match string
	text  string
}{
	{"invalid credentials", "Wrong email or password."},
	{"incorrect email or password", "Wrong email or password."},
	{"already registered", "An account with this email already exists."},
	{"already exists", "An account with this email already exists."},
	{"init data expired", "Telegram session expired, reopen the app."},
	{"invalid init data", "Telegram sign-in failed, reopen the app."},
	{"invalid launch params", "VK sign-in failed, reopen the app."},
	{"invalid refresh token", "Your session has expired, please sign in again."},
}

var fieldLabels = map[string]string{
	"email":      "Email",
	"password":   "Password",
	"first_name": "First name",
	"last_name":  "Last name",
}

var fieldMessages = []struct {
	match string
	text  string
}{
	{"field required", "is required"},
	{"missing", "is required"},
	{"not a valid email", "must be a valid email address"},
	{"valid email", "must be a valid email address"},
	{"at least 8 characters", "must be at least 8 characters long"},
	{"uppercase", "must contain an uppercase letter"},
	{"lowercase", "must contain a lowercase letter"},
	{"number", "must contain a number"},
}

// Translate turns any error from this package into a message fit for the user. Soft
// failures translate to "".
func Translate(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		switch {
		case errors.Is(err, errors.ErrTimeout):
			return "The server did not respond in time. Please try again."
		case errors.Is(err, errors.ErrCredentialAbsent), errors.Is(err, errors.ErrIdentityMismatch):
			return ""
		case errors.Is(err, errors.ErrNoRefreshToken), errors.Is(err, errors.ErrAuthInvalid):
			return "Your session has expired, please sign in again."
		}
		return "Something went wrong. Please try again."
	}

	switch apiErr.Kind {
	case KindTimeout:
		return "The server did not respond in time. Please try again."
	case KindTransport:
		return "No connection to the server. Check your network and try again."
	case KindAuthExpired, KindAuthInvalid:
		if text, ok := knownMessage(apiErr.Message); ok {
			return text
		}
		return "Your session has expired, please sign in again."
	case KindCredentialAbsent, KindIdentityMismatch:
		return ""
	case KindValidation:
		if len(apiErr.Fields) > 0 {
			parts := make([]string, 0, len(apiErr.Fields))
			for _, f := range apiErr.Fields {
				parts = append(parts, translateField(f))
			}
			return strings.Join(parts, "; ")
		}
		if text, ok := knownMessage(apiErr.Message); ok {
			return text
		}
		return "Please check the entered data."
	case KindServer:
		return "Server error. Please try again later."
	}
	return "Something went wrong. Please try again."
}

func knownMessage(msg string) (string, bool) {
	lower := strings.ToLower(msg)
	for _, m := range knownMessages {
		if strings.Contains(lower, m.match) {
			return m.text, true
		}
	}
	return "", false
}

func translateField(f FieldError) string {
	label, ok := fieldLabels[f.Field]
	if !ok {
		label = f.Field
	}
	text := f.Message
	lower := strings.ToLower(f.Message)
	for _, m := range fieldMessages {
		if strings.Contains(lower, m.match) {
			text = m.text
			break
		}
	}
	if label == "" {
		return text
	}
	return label + ": " + text
}
