package apiclient

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-miniapp-session/internal/errors"
)

func TestParseErrorBody(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		msg    string
		fields []FieldError
	}{
		{"detail string", `{"detail":"Invalid credentials"}`, "Invalid credentials", nil},
		{"detail list", `{"detail":[{"loc":["body","first_name"],"msg":"too long","type":"value_error"}]}`, "", []FieldError{{Field: "first_name", Message: "too long"}}},
		{"detail list with index", `{"detail":[{"loc":["body","items",0],"msg":"bad","type":"x"}]}`, "", []FieldError{{Field: "items", Message: "bad"}}},
		{"error and message", `{"error":"conflict","message":"User already exists"}`, "User already exists", nil},
		{"error only", `{"error":"forbidden"}`, "forbidden", nil},
		{"not json", `Bad Gateway`, "Bad Gateway", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, fields := parseErrorBody([]byte(tt.body))
			require.Equal(t, tt.msg, msg)
			require.Equal(t, tt.fields, fields)
		})
	}
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"known login failure", newStatusError(401, []byte(`{"detail":"Invalid credentials"}`)), "Wrong email or password."},
		{"duplicate email", newStatusError(409, []byte(`{"error":"conflict","message":"Email already registered"}`)), "An account with this email already exists."},
		{"unknown validation message is not shown raw", newStatusError(400, []byte(`{"detail":"Currency is not supported"}`)), "Please check the entered data."},
		{"expired session", &Error{Kind: KindAuthExpired, Status: 401}, "Your session has expired, please sign in again."},
		{"credential absent is silent", &Error{Kind: KindCredentialAbsent}, ""},
		{"identity mismatch is silent", errors.ErrIdentityMismatch, ""},
		{"transport", &Error{Kind: KindTransport}, "No connection to the server. Check your network and try again."},
		{"wrapped sentinel", errors.Wrapf(errors.ErrNoRefreshToken, "refresh"), "Your session has expired, please sign in again."},
		{"anything else", errors.ErrUnsupported, "Something went wrong. Please try again."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Translate(tt.err))
		})
	}
}

func TestError_IsMatchesKind(t *testing.T) {
	err := errors.Wrapf(&Error{Kind: KindAuthInvalid, Status: 401}, "[Orchestrator.exchange]")
	require.True(t, errors.Is(err, errors.ErrAuthInvalid))
	require.False(t, errors.Is(err, errors.ErrServer))
}

func TestError_ExpiredSessionIsAlsoInvalid(t *testing.T) {
	err := &Error{Kind: KindAuthExpired, Status: 401}
	require.True(t, errors.Is(err, errors.ErrAuthExpired))
	require.True(t, errors.Is(err, errors.ErrAuthInvalid))
	require.False(t, errors.Is(&Error{Kind: KindAuthInvalid}, errors.ErrAuthExpired))
}
