package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"brandbook/backend/go/internal/models"

	ollama "github.com/ollama/ollama/api"
)

// OllamaModel 是一个用于 Ollama API 的 Embedding 模型客户端。本地部署，不需要凭证。
type OllamaModel struct {
	client *ollama.Client
	model  string
}

// NewOllamaModel 创建一个新的 OllamaModel 客户端。
//
// 参数:
//
//	model: 要使用的模型名称。
//	baseURL: Ollama 服务的基准 URL。如果为空，则默认为 "http://localhost:11434"。
//
// 返回值:
//
//	*OllamaModel: 新创建的 OllamaModel 客户端实例。
//	error: 如果基准 URL 无效，则返回错误。
func NewOllamaModel(model, baseURL string) (*OllamaModel, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	hc := &http.Client{Timeout: 120 * time.Second}
	return &OllamaModel{client: ollama.NewClient(parsedURL, hc), model: model}, nil
}

func (m *OllamaModel) Provider() string { return string(Ollama) }
func (m *OllamaModel) Model() string    { return m.model }

// EmbedBatch 使用 Ollama 的批量嵌入功能。
func (m *OllamaModel) EmbedBatch(ctx context.Context, _ models.Credential, texts []string) (*Result, error) {
	resp, err := m.client.Embed(ctx, &ollama.EmbedRequest{
		Model: m.model,
		Input: texts,
	})
	if err != nil {
		return nil, WrapOllamaError(string(Ollama), err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, &models.ProviderError{
			Provider:   string(Ollama),
			StatusCode: 422,
			Err:        fmt.Errorf("returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts)),
		}
	}
	return &Result{Vectors: resp.Embeddings, Tokens: resp.PromptEvalCount}, nil
}

// WrapOllamaError 提取 ollama 错误中的状态码。
func WrapOllamaError(provider string, err error) error {
	var sErr ollama.StatusError
	if errors.As(err, &sErr) {
		return &models.ProviderError{Provider: provider, StatusCode: sErr.StatusCode, Err: err}
	}
	return &models.ProviderError{Provider: provider, Err: err}
}
