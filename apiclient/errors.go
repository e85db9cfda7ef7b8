package apiclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Categories matched by (*Error).Is. Use errors.Is(err, ErrSessionExpired) and friends
// instead of switching on status codes.
var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionExpired     = errors.New("session expired")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrServer             = errors.New("server error")
	ErrUnexpectedStatus   = errors.New("unexpected status")
	ErrNetwork            = errors.New("network failure")
	ErrRefreshFailed      = errors.New("token refresh failed")
)

// Causes attached to refresh failures.
var (
	ErrNoRefreshToken         = errors.New("no refresh token stored")
	ErrRefreshPanicked        = errors.New("token refresh panicked")
	ErrInvalidRefreshResponse = errors.New("refresh response carries no access token")
)

// Error is the single error shape the client returns. Message is ready to show to a user.
type Error struct {
	Message string
	// Status is the HTTP status, 0 when no response was received.
	Status int
	// Data is the raw response body, nil when there was none.
	Data json.RawMessage
	// Cause is the underlying failure, kept for debugging.
	Cause error

	kinds []error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether e belongs to the category target.
func (e *Error) Is(target error) bool {
	for _, k := range e.kinds {
		if k == target {
			return true
		}
	}
	return false
}

// Messages holds the default user-facing text per failure category.
type Messages struct {
	Validation         string
	InvalidCredentials string
	SessionExpired     string
	Forbidden          string
	NotFound           string
	Conflict           string
	Server             string
	// Unexpected is a format string receiving the status code.
	Unexpected string
}

var DefaultMessages = Messages{
	Validation:         "Invalid input, please check the submitted fields.",
	InvalidCredentials: "Invalid email or password.",
	SessionExpired:     "Your session has expired, please sign in again.",
	Forbidden:          "You do not have permission to perform this action.",
	NotFound:           "The requested resource was not found.",
	Conflict:           "This resource already exists.",
	Server:             "Server error, please try again later.",
	Unexpected:         "Unexpected error (status %d).",
}

var FrenchMessages = Messages{
	Validation:         "Données invalides, veuillez vérifier les champs saisis.",
	InvalidCredentials: "Email ou mot de passe incorrect.",
	SessionExpired:     "Votre session a expiré, veuillez vous reconnecter.",
	Forbidden:          "Vous n'avez pas les droits nécessaires pour cette action.",
	NotFound:           "Ressource introuvable.",
	Conflict:           "Cette ressource existe déjà.",
	Server:             "Erreur serveur, veuillez réessayer plus tard.",
	Unexpected:         "Une erreur est survenue (code %d).",
}

// MessagesFor returns the table for a locale tag ("fr", "fr-FR", ...), English otherwise.
func MessagesFor(locale string) Messages {
	if strings.HasPrefix(strings.ToLower(locale), "fr") {
		return FrenchMessages
	}
	return DefaultMessages
}

// errorBody is the subset of an API error body the normalizer understands.
type errorBody struct {
	Message string            `json:"message"`
	Errors  []json.RawMessage `json:"errors"`
}

type fieldError struct {
	Message string `json:"message"`
	Msg     string `json:"msg"`
}

type normalizer struct {
	msgs Messages
}

// fromResponse maps a failed response. credential marks login/register calls, where a 401
// means wrong credentials rather than a stale session.
func (n normalizer) fromResponse(resp *Response, credential bool, cause error) *Error {
	message, kind := n.category(resp.StatusCode, credential)

	if body, ok := parseErrorBody(resp.Body); ok {
		if fields := body.fieldMessages(); len(fields) > 0 {
			message = strings.Join(fields, ", ")
		} else if body.Message != "" {
			message = body.Message
		}
	}

	if cause == nil {
		cause = fmt.Errorf("%w: %d %s", kind, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	e := &Error{
		Message: message,
		Status:  resp.StatusCode,
		Cause:   cause,
		kinds:   []error{kind},
	}
	if len(resp.Body) > 0 {
		e.Data = json.RawMessage(resp.Body)
	}
	return e
}

// fromTransport maps a failure where no response was received.
func (n normalizer) fromTransport(err error) *Error {
	return &Error{
		Message: err.Error(),
		Cause:   err,
		kinds:   []error{ErrNetwork},
	}
}

func (n normalizer) category(status int, credential bool) (string, error) {
	switch {
	case status == http.StatusBadRequest:
		return n.msgs.Validation, ErrValidation
	case status == http.StatusUnauthorized && credential:
		return n.msgs.InvalidCredentials, ErrInvalidCredentials
	case status == http.StatusUnauthorized:
		return n.msgs.SessionExpired, ErrSessionExpired
	case status == http.StatusForbidden:
		return n.msgs.Forbidden, ErrForbidden
	case status == http.StatusNotFound:
		return n.msgs.NotFound, ErrNotFound
	case status == http.StatusConflict:
		return n.msgs.Conflict, ErrConflict
	case status == http.StatusInternalServerError:
		return n.msgs.Server, ErrServer
	case status > http.StatusInternalServerError:
		return fmt.Sprintf(n.msgs.Unexpected, status), ErrServer
	default:
		return fmt.Sprintf(n.msgs.Unexpected, status), ErrUnexpectedStatus
	}
}

func parseErrorBody(raw []byte) (errorBody, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return errorBody{}, false
	}
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return errorBody{}, false
	}
	return body, true
}

// fieldMessages collects validation messages; items may be objects or bare strings.
func (b errorBody) fieldMessages() []string {
	var out []string
	for _, item := range b.Errors {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if s != "" {
				out = append(out, s)
			}
			continue
		}
		var fe fieldError
		if err := json.Unmarshal(item, &fe); err != nil {
			continue
		}
		switch {
		case fe.Message != "":
			out = append(out, fe.Message)
		case fe.Msg != "":
			out = append(out, fe.Msg)
		}
	}
	return out
}
