package llm

import (
	"context"

	"brandbook/backend/go/internal/embedding"
	"brandbook/backend/go/internal/models"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini 是一个实现了 LLM 接口的结构体，用于与 Gemini API 交互。
// genai 客户端绑定 API 密钥，因此每次请求都创建新的客户端和聊天会话，请求之间不共享任何状态。
type Gemini struct {
	model string
}

// NewGemini 创建一个新的 Gemini 客户端。
func NewGemini(model string) *Gemini {
	return &Gemini{model: model}
}

func (g *Gemini) Provider() string { return "gemini" }
func (g *Gemini) Model() string    { return g.model }

// GenerateContent 向 Gemini API 发送请求并返回响应。
//
// 参数:
//
//	ctx: 上下文，用于控制请求的生命周期。
//	cred: 本次请求使用的 API 密钥。
//	req: 生成内容请求，最后一条内容作为本轮消息发送，之前的内容作为聊天历史。
//
// 返回值:
//
//	*GenerateContentResponse: 生成内容的响应。
//	error: 如果发送消息失败，则返回 *models.ProviderError。
func (g *Gemini) GenerateContent(ctx context.Context, cred models.Credential, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cred.Key()))
	if err != nil {
		return nil, embedding.WrapGoogleError(g.Provider(), err)
	}
	defer client.Close()

	model := client.GenerativeModel(g.model)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	model.SetTemperature(req.Temperature)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.JSONResponse {
		model.ResponseMIMEType = "application/json"
	}

	cs := model.StartChat()
	var last string
	if n := len(req.Content); n > 0 {
		cs.History = toGenaiHistory(req.Content[:n-1])
		last = req.Content[n-1].Text()
	}

	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return nil, embedding.WrapGoogleError(g.Provider(), err)
	}
	return fromGenaiResponse(resp, g.model), nil
}

// toGenaiHistory 将内部消息转换为 Gemini 聊天历史，助手消息使用 "model" 角色。
func toGenaiHistory(content []models.Content) []*genai.Content {
	history := make([]*genai.Content, 0, len(content))
	for _, c := range content {
		role := string(models.SpeakerUser)
		if c.Role == models.SpeakerAssistant || c.Role == models.SpeakerModel {
			role = string(models.SpeakerModel)
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(c.Text())},
		})
	}
	return history
}

// fromGenaiResponse 将 GenAI GenerateContentResponse 转换为内部 GenerateContentResponse 结构体。
func fromGenaiResponse(resp *genai.GenerateContentResponse, model string) *models.GenerateContentResponse {
	if resp == nil {
		return nil
	}
	out := &models.GenerateContentResponse{ModelVersion: model}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		c := models.Content{Role: models.SpeakerModel}
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				c.Parts = append(c.Parts, &models.Part{Text: string(t)})
			}
		}
		out.Content = append(out.Content, c)
	}
	if resp.UsageMetadata != nil {
		out.Usage = models.TokenUsage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out
}
