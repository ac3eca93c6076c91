package models

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialNeverPrintsKey(t *testing.T) {
	c := NewCredential("sk-live-123")

	assert.Equal(t, "sk-live-123", c.Key())
	assert.NotContains(t, c.String(), "sk-live")
	assert.NotContains(t, fmt.Sprintf("%v %+v %#v %s", c, c, c, c), "sk-live")

	out, err := json.Marshal(map[string]interface{}{"cred": c})
	require.NoError(t, err)
	assert.NotContains(t, string(out), "sk-live")
}

func TestCredentialResolve(t *testing.T) {
	def := NewCredential("default")
	assert.Equal(t, "default", Credential{}.Resolve(def).Key())
	assert.Equal(t, "override", NewCredential("override").Resolve(def).Key())
	assert.True(t, Credential{}.IsZero())
}

func TestProviderErrorTransient(t *testing.T) {
	cases := map[int]bool{0: true, 400: false, 401: false, 408: true, 429: true, 500: true, 503: true}
	for status, want := range cases {
		err := fmt.Errorf("wrapped: %w", NewProviderError("openai", status, fmt.Errorf("boom")))
		assert.Equal(t, want, IsTransientProviderError(err), "status %d", status)
	}
	assert.Nil(t, NewProviderError("openai", 500, nil))
	assert.True(t, (&ProviderError{StatusCode: 429}).Throttled())
}

func TestProviderRejection(t *testing.T) {
	cases := map[int]bool{0: false, 400: true, 401: true, 403: true, 404: true, 408: false, 429: false, 500: false}
	for status, want := range cases {
		err := fmt.Errorf("wrapped: %w", NewProviderError("openai", status, fmt.Errorf("boom")))
		pe, ok := ProviderRejection(err)
		assert.Equal(t, want, ok, "status %d", status)
		if ok {
			assert.Equal(t, status, pe.StatusCode)
		}
	}
	_, ok := ProviderRejection(fmt.Errorf("plain"))
	assert.False(t, ok)
	assert.True(t, (&ProviderError{StatusCode: 403}).Unauthorized())
	assert.False(t, (&ProviderError{StatusCode: 400}).Unauthorized())
}
