package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"brandbook/backend/go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHuggingFaceEmbedBatch(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/sentence-transformers/all-MiniLM-L6-v2", r.URL.Path)

		var body struct {
			Inputs []string `json:"inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		out := make([][]float32, len(body.Inputs))
		for i := range body.Inputs {
			out[i] = []float32{float32(i), 1}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer ts.Close()

	m := NewHuggingFaceModel("sentence-transformers/all-MiniLM-L6-v2", ts.URL+"/", nil)
	res, err := m.EmbedBatch(context.Background(), models.NewCredential("hf-token"), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer hf-token", gotAuth)
	assert.Equal(t, [][]float32{{0, 1}, {1, 1}}, res.Vectors)
}

func TestHuggingFaceErrorCarriesStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer ts.Close()

	m := NewHuggingFaceModel("m", ts.URL+"/", nil)
	_, err := m.EmbedBatch(context.Background(), models.Credential{}, []string{"a"})

	var pe *models.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusTooManyRequests, pe.StatusCode)
	assert.Equal(t, 3*time.Second, pe.RetryAfter)
	assert.True(t, pe.Transient())
}

func TestNewEmdModelRejectsUnknownProvider(t *testing.T) {
	_, err := NewEmdModel("cohere", "m", "", nil)
	assert.Error(t, err)

	m, err := NewEmdModel("openai", "text-embedding-3-small", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", m.Provider())
	assert.Equal(t, "text-embedding-3-small", m.Model())
}
