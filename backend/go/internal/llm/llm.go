package llm

import (
	"context"
	"fmt"

	"brandbook/backend/go/internal/config"
	"brandbook/backend/go/internal/models"
)

// LLM 定义了所有大型语言模型客户端必须实现的通用接口。
// 实现不持有凭证，凭证由调用方在每次请求时传入。
type LLM interface {
	Provider() string
	Model() string
	GenerateContent(ctx context.Context, cred models.Credential, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error)
}

// NewClient 是一个工厂函数，根据提供的配置创建并返回一个实现了 LLM 接口的客户端。
func NewClient(cfg config.LLMConfig) (LLM, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGemini(cfg.Model), nil
	case "openai":
		return NewOpenAI(cfg.Model, cfg.BaseURL), nil
	case "ollama":
		return NewOllama(cfg.Model, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
