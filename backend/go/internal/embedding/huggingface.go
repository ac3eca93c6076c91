package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"brandbook/backend/go/internal/models"
	pkghttp "brandbook/backend/go/pkg/http"
)

const defaultHuggingFaceURL = "https://api-inference.huggingface.co/pipeline/feature-extraction/"

// HuggingFaceModel 是一个用于 Hugging Face Inference API 的 Embedding 模型客户端。
type HuggingFaceModel struct {
	client  *pkghttp.Client
	model   string
	baseURL string
}

// NewHuggingFaceModel 创建一个新的 HuggingFaceModel 客户端。
// baseURL 为空时使用 feature-extraction 管道地址；hc 为 nil 时使用不带熔断的客户端。
func NewHuggingFaceModel(modelName, baseURL string, hc *pkghttp.Client) *HuggingFaceModel {
	if baseURL == "" {
		baseURL = defaultHuggingFaceURL
	}
	if hc == nil {
		hc = pkghttp.NewClient(60*time.Second, nil)
	}
	return &HuggingFaceModel{client: hc, model: modelName, baseURL: baseURL}
}

func (m *HuggingFaceModel) Provider() string { return string(HuggingFace) }
func (m *HuggingFaceModel) Model() string    { return m.model }

// EmbedBatch 使用 Hugging Face Inference API 为一批文本生成嵌入向量。
func (m *HuggingFaceModel) EmbedBatch(ctx context.Context, cred models.Credential, texts []string) (*Result, error) {
	payload := map[string]interface{}{
		"inputs":  texts,
		"options": map[string]bool{"wait_for_model": true},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+m.model, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if !cred.IsZero() {
		req.Header.Set("Authorization", "Bearer "+cred.Key())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, &models.ProviderError{Provider: string(HuggingFace), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		pe := &models.ProviderError{
			Provider:   string(HuggingFace),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", bytes.TrimSpace(msg)),
		}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			pe.RetryAfter = time.Duration(secs) * time.Second
		}
		return nil, pe
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, &models.ProviderError{
			Provider:   string(HuggingFace),
			StatusCode: 422,
			Err:        fmt.Errorf("returned %d embeddings for %d inputs", len(vectors), len(texts)),
		}
	}
	return &Result{Vectors: vectors}, nil
}
