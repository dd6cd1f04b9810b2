package handler

import (
	"net/http"

	"legal-assistant-go/internal/middleware"
	"legal-assistant-go/internal/service"

	"github.com/gin-gonic/gin"
)

// NewRouter 创建路由引擎并注册全部路由。
func NewRouter(assistantService service.AssistantService, uploadService service.UploadService, allowedOrigins []string) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery(), middleware.CORS(allowedOrigins))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	chatHandler := NewChatHandler(assistantService)
	assistantHandler := NewAssistantHandler(assistantService)
	uploadHandler := NewUploadHandler(uploadService)

	// 前端直接调用的单次问答接口
	r.POST("/api/openai-chat", chatHandler.Chat)
	// 聊天 WebSocket
	r.GET("/chat/:sessionId", chatHandler.Handle)

	apiV1 := r.Group("/api/v1")
	{
		apiV1.GET("/assistant/guidance", assistantHandler.GetGuidance)

		sessions := apiV1.Group("/assistant/sessions")
		{
			sessions.POST("", assistantHandler.CreateSession)
			sessions.GET("/:id", assistantHandler.GetSession)
			sessions.PUT("/:id/input", assistantHandler.SetPendingInput)
			sessions.POST("/:id/messages", assistantHandler.SubmitMessage)
			sessions.DELETE("/:id", assistantHandler.EndSession)
		}

		uploads := apiV1.Group("/uploads")
		{
			uploads.POST("", uploadHandler.Enqueue)
			uploads.GET("", uploadHandler.List)
			uploads.GET("/categories", uploadHandler.GetCategories)
			uploads.GET("/supported-types", uploadHandler.GetSupportedFileTypes)
			uploads.GET("/ws", uploadHandler.Stream)
			uploads.GET("/:id", uploadHandler.Get)
			uploads.DELETE("/:id", uploadHandler.Remove)
		}
	}
	return r
}
