package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// Request describes one API call. The client clones it before sending, so callers may
// reuse a Request value.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte

	// retried is set once the request has been replayed after a refresh.
	retried bool
}

// NewRequest builds a Request whose body is the JSON encoding of body. A nil body sends
// nothing; []byte and json.RawMessage are sent as is.
func NewRequest(method, path string, body any) (*Request, error) {
	req := &Request{Method: method, Path: path, Header: make(http.Header)}

	switch b := body.(type) {
	case nil:
	case []byte:
		req.Body = b
	case json.RawMessage:
		req.Body = b
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		req.Body = data
	}
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (r *Request) clone() *Request {
	c := *r
	if r.Header != nil {
		c.Header = r.Header.Clone()
	} else {
		c.Header = make(http.Header)
	}
	return &c
}

// bearer returns the token currently in the Authorization header.
func (r *Request) bearer() string {
	const prefix = "Bearer "
	v := r.Header.Get("Authorization")
	if len(v) > len(prefix) && v[:len(prefix)] == prefix {
		return v[len(prefix):]
	}
	return ""
}

func (r *Request) setBearer(token string) {
	r.Header.Set("Authorization", "Bearer "+token)
}

// Response is what a Transport hands back for any received HTTP response, whatever its status.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Envelope is an API body that carries an explicit "success" field.
type Envelope map[string]any

// Success returns the envelope's success flag.
func (e Envelope) Success() bool {
	ok, _ := e["success"].(bool)
	return ok
}

// Message returns the envelope's message, if any.
func (e Envelope) Message() string {
	msg, _ := e["message"].(string)
	return msg
}

// DecodeData decodes the "data" member into v.
func (e Envelope) DecodeData(v any) error {
	raw, err := json.Marshal(e["data"])
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// Result is the success value returned by Client.Do: the envelope when the API wrapped its
// payload, the transport response otherwise. Exactly one field is set.
type Result struct {
	Envelope Envelope
	Response *Response
}

// Decode decodes whichever form the result holds into v.
func (r *Result) Decode(v any) error {
	if r.Envelope != nil {
		raw, err := json.Marshal(r.Envelope)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, v)
	}
	if r.Response == nil || len(r.Response.Body) == 0 {
		return fmt.Errorf("empty response body")
	}
	return json.Unmarshal(r.Response.Body, v)
}

// Unwrap replaces a response whose body is a JSON object with a "success" key by that body.
// Anything else, including an already unwrapped result, is returned unchanged.
func Unwrap(r *Result) *Result {
	if r == nil || r.Envelope != nil || r.Response == nil {
		return r
	}
	body := bytes.TrimSpace(r.Response.Body)
	if len(body) == 0 || body[0] != '{' {
		return r
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return r
	}
	if _, ok := env["success"]; !ok {
		return r
	}
	return &Result{Envelope: env}
}
