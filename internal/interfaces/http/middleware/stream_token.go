// Package middleware 提供 HTTP 中间件
package middleware

import (
	"legal-rag-api/pkg/errors"
	"legal-rag-api/pkg/utils"

	"github.com/gin-gonic/gin"
)

// StreamToken 流地址令牌校验中间件，令牌经 query 参数 token 传递并绑定路径中的 request_id
func StreamToken(secret, issuer string) gin.HandlerFunc {
	jwtManager := utils.NewJWTManager(secret, issuer)

	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			abortAppError(c, errors.ErrStreamTokenInvalid)
			return
		}

		claims, err := jwtManager.ParseStreamToken(token, c.Param("request_id"))
		if err != nil {
			abortAppError(c, errors.ErrStreamTokenInvalid)
			return
		}

		setUser(c, claims.UserID)
		c.Next()
	}
}
