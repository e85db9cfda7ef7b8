package apiclient

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizer_StatusTable(t *testing.T) {
	n := normalizer{msgs: DefaultMessages}

	tests := []struct {
		name       string
		status     int
		credential bool
		wantMsg    string
		wantKind   error
	}{
		{"bad request", http.StatusBadRequest, false, DefaultMessages.Validation, ErrValidation},
		{"login rejected", http.StatusUnauthorized, true, DefaultMessages.InvalidCredentials, ErrInvalidCredentials},
		{"session rejected", http.StatusUnauthorized, false, DefaultMessages.SessionExpired, ErrSessionExpired},
		{"forbidden", http.StatusForbidden, false, DefaultMessages.Forbidden, ErrForbidden},
		{"not found", http.StatusNotFound, false, DefaultMessages.NotFound, ErrNotFound},
		{"conflict", http.StatusConflict, false, DefaultMessages.Conflict, ErrConflict},
		{"internal", http.StatusInternalServerError, false, DefaultMessages.Server, ErrServer},
		{"bad gateway", http.StatusBadGateway, false, "Unexpected error (status 502).", ErrServer},
		{"teapot", http.StatusTeapot, false, "Unexpected error (status 418).", ErrUnexpectedStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := n.fromResponse(&Response{StatusCode: tt.status}, tt.credential, nil)
			require.Equal(t, tt.wantMsg, err.Message)
			require.Equal(t, tt.status, err.Status)
			require.Nil(t, err.Data)
			require.ErrorIs(t, err, tt.wantKind)
		})
	}
}

func TestNormalizer_BodyOverrides(t *testing.T) {
	n := normalizer{msgs: DefaultMessages}

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"message field", `{"message":"Mission déjà pourvue"}`, "Mission déjà pourvue"},
		{"errors with message", `{"message":"ignored","errors":[{"message":"A"},{"message":"B"}]}`, "A, B"},
		{"errors with msg", `{"errors":[{"msg":"email is required","param":"email"}]}`, "email is required"},
		{"errors as strings", `{"errors":["A","B"]}`, "A, B"},
		{"empty errors falls back to message", `{"message":"M","errors":[]}`, "M"},
		{"unusable errors falls back to table", `{"errors":[{"field":"x"}]}`, DefaultMessages.Validation},
		{"non json body", `<html>Bad Request</html>`, DefaultMessages.Validation},
		{"json array body", `["A"]`, DefaultMessages.Validation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := n.fromResponse(&Response{StatusCode: http.StatusBadRequest, Body: []byte(tt.body)}, false, nil)
			require.Equal(t, tt.wantMsg, err.Message)
			require.Equal(t, tt.body, string(err.Data))
		})
	}
}

func TestNormalizer_FromTransport(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := normalizer{msgs: DefaultMessages}.fromTransport(cause)

	require.Equal(t, "connection reset by peer", err.Message)
	require.Zero(t, err.Status)
	require.ErrorIs(t, err, ErrNetwork)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrServer)
}

func TestMessagesFor(t *testing.T) {
	require.Equal(t, FrenchMessages, MessagesFor("fr"))
	require.Equal(t, FrenchMessages, MessagesFor("fr-FR"))
	require.Equal(t, DefaultMessages, MessagesFor("en"))
	require.Equal(t, DefaultMessages, MessagesFor(""))

	err := normalizer{msgs: FrenchMessages}.fromResponse(&Response{StatusCode: 503}, false, nil)
	require.Equal(t, "Une erreur est survenue (code 503).", err.Message)
}

func TestUnwrap(t *testing.T) {
	enveloped := &Result{Response: &Response{StatusCode: 200, Body: []byte(`{"success":true,"data":{"n":1}}`)}}
	once := Unwrap(enveloped)
	require.NotNil(t, once.Envelope)
	require.Same(t, once, Unwrap(once))

	plain := &Result{Response: &Response{StatusCode: 200, Body: []byte(`{"data":1}`)}}
	require.Same(t, plain, Unwrap(plain))

	empty := &Result{Response: &Response{StatusCode: 204}}
	require.Same(t, empty, Unwrap(empty))

	require.Nil(t, Unwrap(nil))
}

func TestNewRequest_Bodies(t *testing.T) {
	req, err := NewRequest(http.MethodGet, "/x", nil)
	require.NoError(t, err)
	require.Nil(t, req.Body)
	require.Empty(t, req.Header.Get("Content-Type"))

	req, err = NewRequest(http.MethodPost, "/x", []byte(`{"raw":true}`))
	require.NoError(t, err)
	require.Equal(t, `{"raw":true}`, string(req.Body))
	require.Equal(t, "application/json", req.Header.Get("Content-Type"))

	_, err = NewRequest(http.MethodPost, "/x", make(chan int))
	require.Error(t, err)
}

func TestMatchPath(t *testing.T) {
	require.True(t, matchPath("/auth/login", "/auth/login"))
	require.True(t, matchPath("/auth/login/", "/auth/login"))
	require.True(t, matchPath("/auth/login?next=/missions", "/auth/login"))
	require.False(t, matchPath("/auth/login-history", "/auth/login"))
	require.False(t, matchPath("/auth/login", ""))
}
