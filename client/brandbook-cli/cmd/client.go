package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status    int
	Message   string `json:"error"`
	Kind      string `json:"kind"`
	Retryable bool   `json:"retryable"`
	Question  string `json:"question"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	if e.Retryable {
		msg += " (retryable)"
	}
	return msg
}

// Client talks to the /api/v1 endpoints.
type Client struct {
	base        string
	token       string
	providerKey string
	http        *http.Client
}

func NewClient(base, token, providerKey string, timeout time.Duration) *Client {
	return &Client{
		base:        strings.TrimRight(base, "/") + "/api/v1",
		token:       token,
		providerKey: providerKey,
		http:        &http.Client{Timeout: timeout},
	}
}

// Upload sends a local file as the multipart "file" field.
func (c *Client) Upload(ctx context.Context, path string, data []byte) (map[string]interface{}, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	var out map[string]interface{}
	err = c.do(ctx, http.MethodPost, "/playbooks", mw.FormDataContentType(), &buf, &out)
	return out, err
}

// AskRequest mirrors the /ask body.
type AskRequest struct {
	Question   string `json:"question"`
	PlaybookID string `json:"playbook_id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	TopK       int    `json:"top_k,omitempty"`
	FollowUps  bool   `json:"follow_ups,omitempty"`
}

// Passage is one supporting passage of an answer.
type Passage struct {
	PlaybookID  string  `json:"playbook_id"`
	Highlighted string  `json:"highlighted_text"`
	PageNumber  int     `json:"page_number"`
	ChunkType   string  `json:"chunk_type"`
	Score       float64 `json:"score"`
}

// AskResponse is the subset of the /ask response the CLI prints.
type AskResponse struct {
	Answer     string    `json:"answer"`
	Confidence float64   `json:"confidence"`
	Passages   []Passage `json:"passages"`
	FollowUps  []string  `json:"follow_up_questions"`
	TokensUsed int       `json:"tokens_used"`
	NoEvidence bool      `json:"no_evidence"`
}

func (c *Client) Ask(ctx context.Context, req AskRequest) (*AskResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var out AskResponse
	if err := c.do(ctx, http.MethodPost, "/ask", "application/json", bytes.NewReader(body), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Playbook is a registered document as listed by the server.
type Playbook struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	FileType   string    `json:"file_type"`
	FileSize   int64     `json:"file_size"`
	UploadedBy string    `json:"uploaded_by"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

func (c *Client) List(ctx context.Context, mine bool) ([]Playbook, error) {
	path := "/playbooks"
	if mine {
		path += "?mine=true"
	}
	var out struct {
		Playbooks []Playbook `json:"playbooks"`
	}
	if err := c.do(ctx, http.MethodGet, path, "", nil, &out); err != nil {
		return nil, err
	}
	return out.Playbooks, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/playbooks/"+url.PathEscape(id), "", nil, nil)
}

// Summary is the /summary response.
type Summary struct {
	PlaybookID  string   `json:"playbook_id"`
	Summary     string   `json:"summary"`
	KeySections []string `json:"key_sections"`
	Cached      bool     `json:"cached"`
}

func (c *Client) Summary(ctx context.Context, id string) (*Summary, error) {
	var out Summary
	if err := c.do(ctx, http.MethodGet, "/playbooks/"+url.PathEscape(id)+"/summary", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Stats(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.do(ctx, http.MethodGet, "/stats", "", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.providerKey != "" {
		req.Header.Set("X-Provider-Key", c.providerKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
