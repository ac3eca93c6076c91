package embedding

import (
	"context"
	"errors"
	"fmt"

	"brandbook/backend/go/internal/models"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GoogleModel 是一个用于 Google GenAI Embedding API 的客户端。
type GoogleModel struct {
	model string
}

// NewGoogleModel 创建一个 GoogleModel。genai 客户端绑定 API 密钥，因此在每次调用时创建。
func NewGoogleModel(modelName string) *GoogleModel {
	return &GoogleModel{model: modelName}
}

func (m *GoogleModel) Provider() string { return string(Google) }
func (m *GoogleModel) Model() string    { return m.model }

// EmbedBatch 为一批文本生成嵌入向量。
func (m *GoogleModel) EmbedBatch(ctx context.Context, cred models.Credential, texts []string) (*Result, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cred.Key()))
	if err != nil {
		return nil, WrapGoogleError(string(Google), err)
	}
	defer client.Close()

	em := client.EmbeddingModel(m.model)
	batch := em.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, WrapGoogleError(string(Google), err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, &models.ProviderError{
			Provider:   string(Google),
			StatusCode: 422,
			Err:        fmt.Errorf("returned %d embeddings for %d inputs", len(res.Embeddings), len(texts)),
		}
	}

	vectors := make([][]float32, 0, len(res.Embeddings))
	for _, emb := range res.Embeddings {
		vectors = append(vectors, emb.Values)
	}
	// Gemini 的 embedding 接口不返回 token 用量。
	return &Result{Vectors: vectors}, nil
}

// WrapGoogleError 提取 googleapi 错误中的状态码。
func WrapGoogleError(provider string, err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return &models.ProviderError{Provider: provider, StatusCode: gErr.Code, Err: err}
	}
	return &models.ProviderError{Provider: provider, Err: err}
}
