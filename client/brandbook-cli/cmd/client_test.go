package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSendsHeadersAndDecodesAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/ask", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "sk-1", r.Header.Get("X-Provider-Key"))
		var body AskRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Which font?", body.Question)
		assert.Equal(t, "doc-1", body.PlaybookID)
		_, _ = io.WriteString(w, `{"answer":"Inter.","confidence":0.9,"tokens_used":12,
			"passages":[{"playbook_id":"doc-1","highlighted_text":"**Inter**","page_number":2,"chunk_type":"text","score":0.8}],
			"follow_up_questions":["Which weights?"]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "tok", "sk-1", time.Second)
	resp, err := c.Ask(context.Background(), AskRequest{Question: "Which font?", PlaybookID: "doc-1"})
	require.NoError(t, err)
	assert.Equal(t, "Inter.", resp.Answer)
	require.Len(t, resp.Passages, 1)

	var out bytes.Buffer
	printAnswer(&out, resp, true)
	assert.Contains(t, out.String(), "doc-1 p.2")
	assert.Contains(t, out.String(), "**Inter**")
	assert.Contains(t, out.String(), "- Which weights?")
}

func TestClientReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":"generation unavailable","kind":"generation_unavailable","retryable":true,"question":"Which font?"}`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", "", time.Second).Ask(context.Background(), AskRequest{Question: "Which font?"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.True(t, apiErr.Retryable)
	assert.Equal(t, "Which font?", apiErr.Question)
	assert.Contains(t, err.Error(), "(retryable)")
}

func TestClientListMineAndUpload(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.RequestURI())
		switch r.Method {
		case http.MethodGet:
			_, _ = io.WriteString(w, `{"playbooks":[{"id":"doc-1","filename":"guide.pdf","chunk_count":3}]}`)
		case http.MethodPost:
			f, fh, err := r.FormFile("file")
			require.NoError(t, err)
			defer f.Close()
			data, _ := io.ReadAll(f)
			assert.Equal(t, "guide.txt", fh.Filename)
			assert.Equal(t, "hello", string(data))
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"playbook_id":"doc-2"}`)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "", time.Second)
	pbs, err := c.List(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, pbs, 1)
	assert.Equal(t, 3, pbs[0].ChunkCount)

	res, err := c.Upload(context.Background(), "/tmp/docs/guide.txt", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "doc-2", res["playbook_id"])
	assert.Equal(t, []string{"/api/v1/playbooks?mine=true", "/api/v1/playbooks"}, paths)
}
