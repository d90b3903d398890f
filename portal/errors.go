package portal

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Token-related error codes in the vendor error envelope.
const (
	codeInvalidToken  = 498
	codeTokenRequired = 499
)

// ServerError is a vendor error envelope. The portal reports most failures
// with HTTP 200 and a JSON body of the form
// {"error": {"code": 498, "message": "...", "details": [...]}}.
type ServerError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

func (e *ServerError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("portal error %d: %s (%s)", e.Code, e.Message, strings.Join(e.Details, "; "))
	}
	return fmt.Sprintf("portal error %d: %s", e.Code, e.Message)
}

// TokenInvalid reports whether the error means the current token is expired
// or otherwise unusable.
func (e *ServerError) TokenInvalid() bool {
	return e.Code == codeInvalidToken || e.Code == codeTokenRequired
}

// HTTPError is a transport-level failure: the server answered with a
// non-success HTTP status instead of the usual 200-with-envelope.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.StatusCode, e.Body)
}

// TokenError reports a failed token acquisition. Invalid marks credential
// rejections as opposed to transient transport failures.
type TokenError struct {
	Invalid bool
	Err     error
}

func (e *TokenError) Error() string {
	if e.Invalid {
		return fmt.Sprintf("credentials rejected: %v", e.Err)
	}
	return fmt.Sprintf("token request failed: %v", e.Err)
}

func (e *TokenError) Unwrap() error { return e.Err }

type errorEnvelope struct {
	Error *ServerError `json:"error"`
}

// decodeErrorEnvelope returns the vendor error carried in body, or nil when
// the body holds a regular payload.
func decodeErrorEnvelope(body []byte) *ServerError {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil
	}
	if env.Error == nil || (env.Error.Code == 0 && env.Error.Message == "") {
		return nil
	}
	return env.Error
}
