package models

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ProviderError 描述一次对外部模型提供商（embedding 或 LLM）调用的失败。
// StatusCode 为 0 表示请求没有拿到 HTTP 响应（网络错误、超时等）。
type ProviderError struct {
	Provider   string
	StatusCode int
	// RetryAfter 是提供商在限流响应中给出的等待时间，未给出时为 0。
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Transient 报告这次失败是否值得重试：限流、请求超时、服务端错误和网络错误。
func (e *ProviderError) Transient() bool {
	switch {
	case e.StatusCode == 0:
		return !errors.Is(e.Err, context.Canceled)
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	default:
		return e.StatusCode >= http.StatusInternalServerError
	}
}

// Throttled 报告提供商是否返回了限流响应。
func (e *ProviderError) Throttled() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Rejected 报告提供商是否明确拒绝了请求（除 408、429 外的 4xx），重试不会改变结果。
func (e *ProviderError) Rejected() bool {
	if e.StatusCode < http.StatusBadRequest || e.StatusCode >= http.StatusInternalServerError {
		return false
	}
	return e.StatusCode != http.StatusRequestTimeout && e.StatusCode != http.StatusTooManyRequests
}

// Unauthorized 报告提供商是否拒绝了调用方的凭据。
func (e *ProviderError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// ProviderRejection 返回错误链中被提供商拒绝的 ProviderError。
func ProviderRejection(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Rejected() {
		return pe, true
	}
	return nil, false
}

// IsTransientProviderError 检查错误链中是否有可重试的 ProviderError。
func IsTransientProviderError(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient()
	}
	return false
}

// NewProviderError 包装一个提供商错误，err 为 nil 时返回 nil。
func NewProviderError(provider string, status int, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, StatusCode: status, Err: err}
}
