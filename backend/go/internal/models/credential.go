package models

// redacted 是凭证在任何文本或 JSON 表示中的替代值。
const redacted = "[REDACTED]"

// Credential 是调用外部模型提供商时使用的 API 密钥。
// 它作为显式参数在每次调用中传递，不保存在任何全局状态中；
// 其 String、GoString 和 JSON 编码都不会暴露密钥本身，因此误打日志也不会泄漏。
type Credential struct {
	key string
}

// NewCredential 用给定的密钥创建凭证。空字符串表示未提供。
func NewCredential(key string) Credential {
	return Credential{key: key}
}

// Key 返回原始密钥，只应在构造提供商请求时调用。
func (c Credential) Key() string { return c.key }

// IsZero 报告凭证是否为空。
func (c Credential) IsZero() bool { return c.key == "" }

// Resolve 在 c 为空时返回进程级默认凭证 def。
func (c Credential) Resolve(def Credential) Credential {
	if c.IsZero() {
		return def
	}
	return c
}

func (c Credential) String() string {
	if c.IsZero() {
		return ""
	}
	return redacted
}

func (c Credential) GoString() string { return "models.Credential{" + c.String() + "}" }

// MarshalJSON 永远不输出密钥。
func (c Credential) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// MarshalText 供 logrus 等按文本编码的场景使用。
func (c Credential) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}
