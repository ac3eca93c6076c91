package embedding

import (
	"fmt"

	pkghttp "brandbook/backend/go/pkg/http"
)

// NewEmdModel 根据指定的提供商、模型和基础 URL 创建一个新的 Embedding 模型实例。
//
// 参数:
//
//	provider: Embedding 模型的提供商 (例如: "gemini", "openai", "huggingface", "ollama")。
//	model: 要使用的模型名称。
//	baseURL: 模型的服务基础 URL (可选，某些提供商可能不需要)。
//	hc: HuggingFace 使用的带熔断的 HTTP 客户端。
//
// 返回值:
//
//	Embedding: 新创建的 Embedding 模型实例。
//	error: 如果提供商不支持或模型初始化失败，则返回错误。
func NewEmdModel(provider, model, baseURL string, hc *pkghttp.Client) (Embedding, error) {
	switch ModelType(provider) {
	case Google:
		return NewGoogleModel(model), nil
	case OpenAI:
		return NewOpenAIModel(model, baseURL), nil
	case HuggingFace:
		return NewHuggingFaceModel(model, baseURL, hc), nil
	case Ollama:
		return NewOllamaModel(model, baseURL)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", provider)
	}
}
