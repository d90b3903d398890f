package portal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeErrorEnvelope(t *testing.T) {
	body := []byte(`{"error": {"code": 498, "message": "Invalid token.", "details": ["Token expired."]}}`)

	srvErr := decodeErrorEnvelope(body)
	require.NotNil(t, srvErr)
	assert.Equal(t, 498, srvErr.Code)
	assert.True(t, srvErr.TokenInvalid())
	assert.Contains(t, srvErr.Error(), "Invalid token.")
	assert.Contains(t, srvErr.Error(), "Token expired.")
}

func TestDecodeErrorEnvelopeIgnoresRegularPayloads(t *testing.T) {
	assert.Nil(t, decodeErrorEnvelope([]byte(`{"token": "abc", "expires": 123}`)))
	assert.Nil(t, decodeErrorEnvelope([]byte(`{"features": []}`)))
	assert.Nil(t, decodeErrorEnvelope([]byte(`not json at all`)))
	assert.Nil(t, decodeErrorEnvelope([]byte(`{"error": null}`)))
}

func TestServerErrorTokenInvalid(t *testing.T) {
	assert.True(t, (&ServerError{Code: 498}).TokenInvalid())
	assert.True(t, (&ServerError{Code: 499}).TokenInvalid())
	assert.False(t, (&ServerError{Code: 400}).TokenInvalid())
}

func TestHTTPErrorMessage(t *testing.T) {
	err := &HTTPError{StatusCode: 503, Body: "unavailable"}
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "unavailable")
}

func TestTokenErrorMessages(t *testing.T) {
	invalid := &TokenError{Invalid: true, Err: assert.AnError}
	assert.Contains(t, invalid.Error(), "credentials rejected")

	transient := &TokenError{Err: assert.AnError}
	assert.Contains(t, transient.Error(), "token request failed")
	assert.ErrorIs(t, transient, assert.AnError)
}
