package models

// RequestInfo 存储了关于 HTTP 请求的上下文信息，随请求日志一起输出。
type RequestInfo struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	RemoteAddr string `json:"remote_addr"`
	UserAgent  string `json:"user_agent,omitempty"`
	Status     int    `json:"status,omitempty"`
	LatencyMS  int64  `json:"latency_ms,omitempty"`
}

// ErrorInfo 存储了关于错误的结构化信息。
type ErrorInfo struct {
	Message    string `json:"message"`
	Kind       string `json:"kind,omitempty"`        // 错误类别，例如 "embedding_unavailable"
	Retryable  bool   `json:"retryable,omitempty"`   // 调用方是否可以重试
	StatusCode int    `json:"status_code,omitempty"` // 相关的HTTP状态码
}
