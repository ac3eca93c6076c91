package llm

import (
	"context"
	"time"

	"brandbook/backend/go/internal/embedding"
	"brandbook/backend/go/internal/models"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// OpenAI 是一个用于 OpenAI（及兼容接口）的 LLM 客户端。
type OpenAI struct {
	model   string
	baseURL string
}

// NewOpenAI 创建一个新的 OpenAI 客户端。
func NewOpenAI(model, baseURL string) *OpenAI {
	return &OpenAI{model: model, baseURL: baseURL}
}

func (o *OpenAI) Provider() string { return "openai" }
func (o *OpenAI) Model() string    { return o.model }

// GenerateContent 使用 OpenAI API 生成内容。
func (o *OpenAI) GenerateContent(ctx context.Context, cred models.Credential, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	config := openai.DefaultConfig(cred.Key())
	if o.baseURL != "" {
		config.BaseURL = o.baseURL
	}
	client := openai.NewClientWithConfig(config)

	resp, err := client.CreateChatCompletion(ctx, o.toOpenAIRequest(req))
	if err != nil {
		return nil, embedding.WrapOpenAIError(o.Provider(), err)
	}
	return o.toGenerateContentResponse(&resp), nil
}

// toOpenAIRequest 将我们的内部请求格式转换为 OpenAI 格式。
func (o *OpenAI) toOpenAIRequest(req *models.GenerateContentRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Content)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, content := range req.Content {
		role := openai.ChatMessageRoleUser
		if content.Role == models.SpeakerAssistant || content.Role == models.SpeakerModel {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: content.Text(),
		})
	}

	// 温度总是显式发送，0 表示确定性输出而不是服务端默认值。
	temperature := req.Temperature
	out := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: &temperature,
	}
	if req.JSONResponse {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return out
}

// toGenerateContentResponse 将 OpenAI 响应转换为我们的内部格式。
func (o *OpenAI) toGenerateContentResponse(resp *openai.ChatCompletionResponse) *models.GenerateContentResponse {
	content := make([]models.Content, 0, len(resp.Choices))
	for _, choice := range resp.Choices {
		content = append(content, models.TextContent(models.SpeakerModel, choice.Message.Content))
	}

	return &models.GenerateContentResponse{
		Content:      content,
		CreateTime:   time.Unix(resp.Created, 0),
		ResponseID:   resp.ID,
		ModelVersion: resp.Model,
		Usage: models.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}
}
