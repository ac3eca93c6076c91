package embedding

import (
	"context"
	"errors"
	"fmt"

	"brandbook/backend/go/internal/models"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// OpenAIModel 是一个用于 OpenAI（及兼容接口）的 Embedding 模型客户端。
type OpenAIModel struct {
	model   string
	baseURL string
}

// NewOpenAIModel 创建一个新的 OpenAIModel。baseURL 为空时使用官方地址。
func NewOpenAIModel(modelName, baseURL string) *OpenAIModel {
	return &OpenAIModel{model: modelName, baseURL: baseURL}
}

func (m *OpenAIModel) Provider() string { return string(OpenAI) }
func (m *OpenAIModel) Model() string    { return m.model }

// EmbedBatch 使用 OpenAI API 为一批文本生成嵌入向量。客户端按凭证逐次创建。
func (m *OpenAIModel) EmbedBatch(ctx context.Context, cred models.Credential, texts []string) (*Result, error) {
	config := openai.DefaultConfig(cred.Key())
	if m.baseURL != "" {
		config.BaseURL = m.baseURL
	}
	client := openai.NewClientWithConfig(config)

	resp, err := client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(m.model),
	})
	if err != nil {
		return nil, WrapOpenAIError(string(OpenAI), err)
	}
	if len(resp.Data) != len(texts) {
		return nil, &models.ProviderError{
			Provider:   string(OpenAI),
			StatusCode: 422,
			Err:        fmt.Errorf("returned %d embeddings for %d inputs", len(resp.Data), len(texts)),
		}
	}

	// 按 Index 放回原位，保证与输入顺序一致。
	vectors := make([][]float32, len(texts))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(texts) {
			idx = i
		}
		vectors[idx] = d.Embedding
	}
	return &Result{Vectors: vectors, Tokens: resp.Usage.PromptTokens}, nil
}

// WrapOpenAIError 将 go-openai 的错误转换为带状态码的 ProviderError。
func WrapOpenAIError(provider string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &models.ProviderError{Provider: provider, StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &models.ProviderError{Provider: provider, StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return &models.ProviderError{Provider: provider, Err: err}
}
