package handler

import (
	"errors"
	"net/http"

	"legal-assistant-go/internal/service"
	"legal-assistant-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AssistantHandler 负责助手会话的 REST 接口。
type AssistantHandler struct {
	assistantService service.AssistantService
}

// NewAssistantHandler 创建一个新的 AssistantHandler 实例。
func NewAssistantHandler(assistantService service.AssistantService) *AssistantHandler {
	return &AssistantHandler{assistantService: assistantService}
}

// TextRequest 用于提交消息和更新待提交输入。
type TextRequest struct {
	Text string `json:"text"`
}

// CreateSession 创建一个新会话并返回其初始状态。
func (h *AssistantHandler) CreateSession(c *gin.Context) {
	session := h.assistantService.CreateSession()
	c.JSON(http.StatusCreated, gin.H{
		"code":    http.StatusCreated,
		"message": "会话创建成功",
		"data":    session.State(),
	})
}

// GetSession 返回会话当前状态。
func (h *AssistantHandler) GetSession(c *gin.Context) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "获取会话成功",
		"data":    session.State(),
	})
}

// SetPendingInput 保存尚未提交的输入内容。
func (h *AssistantHandler) SetPendingInput(c *gin.Context) {
	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载"})
		return
	}
	session, ok := h.lookup(c)
	if !ok {
		return
	}
	session.SetPendingInput(req.Text)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "输入已保存",
		"data":    session.State(),
	})
}

// SubmitMessage 同步提交一条消息，返回新增的两条消息和可选的提示。
func (h *AssistantHandler) SubmitMessage(c *gin.Context) {
	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载"})
		return
	}
	session, ok := h.lookup(c)
	if !ok {
		return
	}

	result, err := session.Submit(c.Request.Context(), req.Text)
	if errors.Is(err, service.ErrRequestInFlight) {
		c.JSON(http.StatusConflict, gin.H{"code": http.StatusConflict, "message": "上一条消息仍在等待回复"})
		return
	}
	if err != nil {
		log.Error("SubmitMessage: failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "服务器内部错误"})
		return
	}
	if !result.Submitted {
		// 空白输入不产生消息，也不视为错误
		c.JSON(http.StatusOK, gin.H{
			"code":    http.StatusOK,
			"message": "空消息已忽略",
			"data":    gin.H{"submitted": false},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "消息已提交",
		"data": gin.H{
			"submitted": true,
			"user":      result.User,
			"reply":     result.Reply,
			"notice":    result.Notice,
		},
	})
}

// GetGuidance 返回推荐操作和学习资源。
func (h *AssistantHandler) GetGuidance(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "获取指导内容成功",
		"data":    h.assistantService.Guidance(),
	})
}

// EndSession 结束会话，丢弃其历史。
func (h *AssistantHandler) EndSession(c *gin.Context) {
	if err := h.assistantService.EndSession(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "会话不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "会话已结束"})
}

func (h *AssistantHandler) lookup(c *gin.Context) (*service.AssistantSession, bool) {
	session, err := h.assistantService.GetSession(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "会话不存在"})
		return nil, false
	}
	return session, true
}
