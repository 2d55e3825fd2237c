// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, auth, streamAuth, rateLimit gin.HandlerFunc, handlers Handlers) {
	if chatHandler := handlers.Chat; chatHandler != nil {
		chat := v1.Group("/chat")
		{
			chat.POST("/start", auth, rateLimit, chatHandler.Start)
			chat.GET("/stream/:request_id", streamAuth, chatHandler.Stream)
			chat.POST("/cancel/:request_id", auth, rateLimit, chatHandler.Cancel)
			chat.GET("/sessions/:request_id", auth, chatHandler.GetSession)
			chat.GET("/sessions/:request_id/tasks", auth, chatHandler.ListTasks)
			chat.GET("/trace/:request_id", auth, chatHandler.GetTrace)
		}
	}

	if passageHandler := handlers.Passage; passageHandler != nil {
		admin := v1.Group("/admin", auth, rateLimit)
		{
			admin.POST("/passages", passageHandler.Ingest)
			admin.DELETE("/passages/:document_id", passageHandler.Delete)
		}
	}
}
