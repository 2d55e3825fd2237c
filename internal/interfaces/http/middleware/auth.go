// Package middleware 提供 HTTP 中间件
package middleware

import (
	"errors"
	"strings"

	apperrors "legal-rag-api/pkg/errors"
	"legal-rag-api/pkg/logger"
	"legal-rag-api/pkg/utils"

	"github.com/gin-gonic/gin"
)

// AuthConfig 认证配置
type AuthConfig struct {
	// Secret JWT 密钥
	Secret string
	// Issuer JWT 签发者
	Issuer string
	// SkipPaths 跳过认证的路径
	SkipPaths []string
	// Enabled 是否启用认证
	Enabled bool
	// UserHeader 未启用认证时读取用户 ID 的请求头（仅开发环境）
	UserHeader string
}

// Auth 认证中间件，校验外部身份服务签发的访问令牌并注入 user_id
func Auth(cfg AuthConfig) gin.HandlerFunc {
	jwtManager := utils.NewJWTManager(cfg.Secret, cfg.Issuer)
	if cfg.UserHeader == "" {
		cfg.UserHeader = "X-User-ID"
	}

	skipMap := make(map[string]bool)
	for _, path := range cfg.SkipPaths {
		skipMap[path] = true
	}

	return func(c *gin.Context) {
		if skipMap[c.Request.URL.Path] {
			c.Next()
			return
		}
		for path := range skipMap {
			if strings.HasPrefix(c.Request.URL.Path, path) {
				c.Next()
				return
			}
		}

		if !cfg.Enabled {
			userID := strings.TrimSpace(c.GetHeader(cfg.UserHeader))
			if userID == "" {
				userID = "anonymous"
			}
			setUser(c, userID)
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortAppError(c, apperrors.ErrTokenMissing)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortAppError(c, apperrors.ErrTokenInvalid.WithDetail("invalid authorization format"))
			return
		}

		claims, err := jwtManager.ParseAccessToken(parts[1])
		if err != nil {
			appErr := apperrors.ErrTokenInvalid
			if errors.Is(err, utils.ErrExpiredToken) {
				appErr = apperrors.ErrTokenExpired
			}
			abortAppError(c, appErr)
			return
		}

		setUser(c, claims.UserID)
		c.Next()
	}
}

func setUser(c *gin.Context, userID string) {
	c.Set("user_id", userID)
	ctx := logger.WithContext(c.Request.Context(), logger.UserIDKey, userID)
	c.Request = c.Request.WithContext(ctx)
}

// GetUserIDFromGin 从 Gin Context 中获取用户 ID
func GetUserIDFromGin(c *gin.Context) string {
	return c.GetString("user_id")
}

// abortAppError 终止请求并按 AppError 输出统一错误体
func abortAppError(c *gin.Context, appErr *apperrors.AppError) {
	detail := gin.H{"error_code": string(appErr.Code)}
	if appErr.Detail != "" {
		detail["details"] = appErr.Detail
	}
	c.AbortWithStatusJSON(appErr.HTTPStatus, gin.H{
		"code":     appErr.HTTPStatus,
		"message":  appErr.Message,
		"error":    detail,
		"trace_id": c.GetString("trace_id"),
	})
}

// DefaultSkipPaths 默认跳过认证的路径
var DefaultSkipPaths = []string{
	"/health",
	"/ready",
	"/live",
	"/metrics",
}
