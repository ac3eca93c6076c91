package embedding

import (
	"context"

	"brandbook/backend/go/internal/models"
)

// Embedding 定义了所有 embedding 提供商需要实现的接口。
// 实现不保存任何凭证，每次调用都由调用方显式传入。
type Embedding interface {
	// Provider 返回提供商名称，例如 "openai"。
	Provider() string
	// Model 返回模型名称。
	Model() string

	// EmbedBatch 为一批文本生成嵌入向量。
	//
	// 参数:
	//   ctx: 上下文，用于控制操作的生命周期。
	//   cred: 本次调用使用的凭证。
	//   texts: 要生成嵌入向量的文本切片。
	//
	// 返回值:
	//   *Result: 与 texts 一一对应的嵌入向量及 token 用量。
	//   error: 失败时返回 *models.ProviderError。
	EmbedBatch(ctx context.Context, cred models.Credential, texts []string) (*Result, error)
}

// Result 是一次批量调用的结果。
type Result struct {
	Vectors [][]float32
	// Tokens 是提供商报告的输入 token 数，未报告时为 0。
	Tokens int
}

// ModelType 是一个枚举类型，用于表示不同的模型厂商。
type ModelType string

const (
	OpenAI      ModelType = "openai"      // OpenAI 模型类型。
	Google      ModelType = "gemini"      // Google 模型类型。
	Ollama      ModelType = "ollama"      // Ollama 模型类型。
	HuggingFace ModelType = "huggingface" // HuggingFace 模型类型。
)
