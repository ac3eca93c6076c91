package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"brandbook/backend/go/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

const (
	ctxUserID  = "userID"
	ctxTraceID = "traceID"

	headerRequestID   = "X-Request-ID"
	headerProviderKey = "X-Provider-Key"
)

// RequestID 为每个请求设置 trace ID，优先沿用调用方传入的 X-Request-ID。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(headerRequestID))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(ctxTraceID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// Auth 根据配置返回认证中间件。method 为 none 时所有请求都视为默认用户。
func Auth(cfg config.AuthConfig) gin.HandlerFunc {
	if strings.EqualFold(cfg.Method, "jwt") {
		return AuthMiddleware(cfg.JwtSecret)
	}
	user := cfg.DefaultUser
	return func(c *gin.Context) {
		c.Set(ctxUserID, user)
		c.Next()
	}
}

// AuthMiddleware 验证 "Bearer <token>" 形式的 HMAC 签名 JWT，
// 并把 sub 声明作为用户 ID 写入上下文。sub 可以是字符串或数字。
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			unauthorized(c, "请求未包含授权标头")
			return
		}
		scheme, tokenString, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || tokenString == "" {
			unauthorized(c, "授权标头格式不正确")
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("非预期的签名方法")
			}
			return []byte(jwtSecret), nil
		})
		if err != nil || !token.Valid {
			unauthorized(c, "无效的 token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			unauthorized(c, "无效的 token claims")
			return
		}
		userID := subject(claims["sub"])
		if userID == "" {
			unauthorized(c, "token 缺少 sub 声明")
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

// subject 把 sub 声明转换为字符串。JSON 数字解析后是 float64。
func subject(v interface{}) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return fmt.Sprintf("%.0f", s)
	default:
		return ""
	}
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg, "retryable": false})
}
