package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"brandbook/backend/go/internal/embedding"
	"brandbook/backend/go/internal/models"

	olla "github.com/ollama/ollama/api"
)

// Ollama 是一个用于 Ollama API 的 LLM 客户端。本地部署，忽略凭证。
type Ollama struct {
	client *olla.Client
	model  string
}

// NewOllama 创建一个新的 Ollama 客户端。
//
// 参数:
//
//	model: 要使用的模型名称。
//	baseURL: Ollama 服务的基准 URL。如果为空，则默认为 "http://localhost:11434"。
//
// 返回值:
//
//	*Ollama: 新创建的 Ollama 客户端实例。
//	error: 如果基准 URL 无效，则返回错误。
func NewOllama(model, baseURL string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	hc := &http.Client{Timeout: 120 * time.Second}
	return &Ollama{client: olla.NewClient(parsedURL, hc), model: model}, nil
}

func (o *Ollama) Provider() string { return "ollama" }
func (o *Ollama) Model() string    { return o.model }

// GenerateContent 使用 Ollama API 以非流式方式生成内容。
func (o *Ollama) GenerateContent(ctx context.Context, _ models.Credential, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	stream := false
	genReq := &olla.GenerateRequest{
		Model:  o.model,
		System: req.System,
		Prompt: toOllamaPrompt(req),
		Stream: &stream,
		Options: map[string]interface{}{
			"temperature": req.Temperature,
		},
	}
	if req.MaxTokens > 0 {
		genReq.Options["num_predict"] = req.MaxTokens
	}
	if req.JSONResponse {
		genReq.Format = json.RawMessage(`"json"`)
	}

	var result *olla.GenerateResponse
	err := o.client.Generate(ctx, genReq, func(resp olla.GenerateResponse) error {
		result = &resp
		return nil
	})
	if err != nil {
		return nil, embedding.WrapOllamaError(o.Provider(), err)
	}
	if result == nil {
		return nil, &models.ProviderError{Provider: o.Provider(), Err: fmt.Errorf("empty response")}
	}

	return &models.GenerateContentResponse{
		Content:      []models.Content{models.TextContent(models.SpeakerModel, result.Response)},
		CreateTime:   result.CreatedAt,
		ModelVersion: result.Model,
		Usage: models.TokenUsage{
			PromptTokens:     result.PromptEvalCount,
			CompletionTokens: result.EvalCount,
		},
	}, nil
}

// toOllamaPrompt 把多轮对话展开成一个带角色前缀的提示字符串，最后一条为当前问题。
func toOllamaPrompt(req *models.GenerateContentRequest) string {
	if len(req.Content) == 1 {
		return req.Content[0].Text()
	}
	var sb strings.Builder
	for _, content := range req.Content {
		switch content.Role {
		case models.SpeakerAssistant, models.SpeakerModel:
			sb.WriteString("Assistant: ")
		default:
			sb.WriteString("User: ")
		}
		sb.WriteString(content.Text())
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}
