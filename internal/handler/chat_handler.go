// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"legal-assistant-go/internal/service"
	"legal-assistant-go/pkg/llm"
	"legal-assistant-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源，跨域由 CORS 中间件控制
		},
	}
)

// ChatHandler 负责单次问答接口和 WebSocket 聊天连接。
type ChatHandler struct {
	assistantService service.AssistantService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(assistantService service.AssistantService) *ChatHandler {
	return &ChatHandler{assistantService: assistantService}
}

// ChatRequest 是单次问答接口的请求体。Context 非空时替换默认系统指令。
type ChatRequest struct {
	Message string `json:"message"`
	Context string `json:"context"`
}

// Chat 处理 POST /api/openai-chat，返回 {response} 或 {error}。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	// 请求体无法解析时与其他未预期错误一样返回 500
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Chat: 无法解析请求体: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message is required"})
		return
	}

	response, err := h.assistantService.Complete(c.Request.Context(), req.Message, req.Context)
	if err != nil {
		status, message := chatErrorResponse(err)
		c.JSON(status, gin.H{"error": message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": response})
}

// chatErrorResponse 把补全错误映射为对外的状态码和通用文案，不暴露配置细节。
func chatErrorResponse(err error) (int, string) {
	var statusErr *llm.StatusError
	switch {
	case errors.Is(err, llm.ErrMissingAPIKey):
		return http.StatusInternalServerError, "API configuration error"
	case errors.As(err, &statusErr):
		return statusErr.StatusCode, "Failed to get AI response"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// Handle 处理 /chat/:sessionId 上的 WebSocket 连接，每条文本消息都是一次提交。
func (h *ChatHandler) Handle(c *gin.Context) {
	session, err := h.assistantService.GetSession(c.Param("sessionId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "会话不存在", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infow("WebSocket 聊天连接已建立", "session", session.ID())

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		result, err := session.Submit(c.Request.Context(), string(message))
		if errors.Is(err, service.ErrRequestInFlight) {
			if err := conn.WriteJSON(gin.H{"error": "A response is still being generated"}); err != nil {
				break
			}
			continue
		}
		if !result.Submitted {
			continue
		}

		if err := writeReply(conn, result); err != nil {
			log.Warnf("写入 WebSocket 失败: %v", err)
			break
		}
	}
}

// jsonWriter 是 *websocket.Conn 中用于发送 JSON 帧的部分。
type jsonWriter interface {
	WriteJSON(v interface{}) error
}

// writeReply 依次发送回复、可选的错误提示和完成通知，任一帧写入失败即返回。
func writeReply(ws jsonWriter, result service.SubmitResult) error {
	if err := ws.WriteJSON(gin.H{"chunk": result.Reply.Text}); err != nil {
		return err
	}
	if result.Notice != "" {
		if err := ws.WriteJSON(gin.H{"error": result.Notice}); err != nil {
			return err
		}
	}
	return sendCompletion(ws)
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(ws jsonWriter) error {
	now := time.Now()
	return ws.WriteJSON(gin.H{
		"type":      "completion",
		"status":    "finished",
		"message":   "response completed",
		"timestamp": now.UnixMilli(),
		"date":      now.Format("2006-01-02T15:04:05"),
	})
}
