package models

import (
	"strings"
	"time"
)

// SpeakerRole 定义了消息发送者的角色。
type SpeakerRole string

const (
	SpeakerUser      SpeakerRole = "user"      // 用户（提问方）。
	SpeakerAssistant SpeakerRole = "assistant" // 助手（回答方）。
	SpeakerModel     SpeakerRole = "model"     // Gemini 使用的模型角色。
)

// Content 是一条消息。
type Content struct {
	Parts []*Part     `json:"parts,omitempty"`
	Role  SpeakerRole `json:"role,omitempty"`
}

// Text 拼接消息中的所有文本部分。
func (c Content) Text() string {
	var sb strings.Builder
	for _, p := range c.Parts {
		if p != nil {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// Part 是消息的一个文本片段。
type Part struct {
	Text string `json:"text,omitempty"`
}

// TextContent 以单个文本片段构造一条消息。
func TextContent(role SpeakerRole, text string) Content {
	return Content{Role: role, Parts: []*Part{{Text: text}}}
}

// GenerateContentRequest 定义了生成内容的请求结构。
// System 是系统指令，Content 是按时间顺序排列的对话（最后一条是当前问题）。
type GenerateContentRequest struct {
	System      string    `json:"system,omitempty"`
	Content     []Content `json:"content,omitempty"`
	Temperature float32   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"maxTokens,omitempty"`
	// JSONResponse 要求模型只输出一个 JSON 对象。
	JSONResponse bool `json:"jsonResponse,omitempty"`
}

// TokenUsage 记录一次调用消耗的 token 数。Estimated 为 true 表示提供商没有返回计数，数值为本地估算。
type TokenUsage struct {
	PromptTokens     int  `json:"prompt_tokens" bson:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens" bson:"completion_tokens"`
	EmbeddingTokens  int  `json:"embedding_tokens" bson:"embedding_tokens"`
	Estimated        bool `json:"estimated,omitempty" bson:"estimated,omitempty"`
}

// Total 返回所有 token 的总数。
func (u TokenUsage) Total() int {
	return u.PromptTokens + u.CompletionTokens + u.EmbeddingTokens
}

// Add 累加另一份用量。
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		EmbeddingTokens:  u.EmbeddingTokens + o.EmbeddingTokens,
		Estimated:        u.Estimated || o.Estimated,
	}
}

// GenerateContentResponse 定义了生成内容的响应结构。
type GenerateContentResponse struct {
	Content      []Content  `json:"content,omitempty"`
	CreateTime   time.Time  `json:"createTime,omitempty"`
	ResponseID   string     `json:"responseId,omitempty"`
	ModelVersion string     `json:"modelVersion,omitempty"`
	Usage        TokenUsage `json:"usage"`
}

// Text 返回第一个候选回复的文本。
func (r *GenerateContentResponse) Text() string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	return r.Content[0].Text()
}

// EstimateTokens 在提供商没有返回用量时粗略估算 token 数（约 4 个字符一个 token）。
func EstimateTokens(texts ...string) int {
	n := 0
	for _, t := range texts {
		n += (len(t) + 3) / 4
	}
	return n
}
