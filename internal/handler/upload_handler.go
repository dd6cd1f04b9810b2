package handler

import (
	"context"
	"errors"
	"net/http"

	"legal-assistant-go/internal/model"
	"legal-assistant-go/internal/service"
	"legal-assistant-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UploadHandler 负责模拟上传相关的 API 请求。
type UploadHandler struct {
	uploadService service.UploadService
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(uploadService service.UploadService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService}
}

// EnqueueRequest 定义了批量创建上传任务的请求体结构。
type EnqueueRequest struct {
	Category string                 `json:"category"`
	Files    []model.FileDescriptor `json:"files" binding:"required,min=1,dive"`
}

// Enqueue 为选中的文件创建模拟上传任务。
func (h *UploadHandler) Enqueue(c *gin.Context) {
	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载"})
		return
	}

	tasks, err := h.uploadService.Enqueue(req.Files, req.Category)
	if err != nil {
		log.Error("Enqueue: failed to enqueue uploads", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": http.StatusServiceUnavailable, "message": "上传服务不可用"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"code":    http.StatusAccepted,
		"message": "上传任务已创建",
		"data":    tasks,
	})
}

// List 返回所有活动任务。
func (h *UploadHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "获取上传任务成功",
		"data":    h.uploadService.List(),
	})
}

// Get 返回单个任务。
func (h *UploadHandler) Get(c *gin.Context) {
	task, err := h.uploadService.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "未找到上传任务"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "获取上传任务成功",
		"data":    task,
	})
}

// Remove 删除任务，无论其处于什么状态。
func (h *UploadHandler) Remove(c *gin.Context) {
	err := h.uploadService.Remove(c.Param("id"))
	if errors.Is(err, service.ErrTaskNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "未找到上传任务"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "上传任务已移除"})
}

// GetCategories 返回可选的文档分类。
func (h *UploadHandler) GetCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "获取文档分类成功",
		"data":    model.DocumentCategories(),
	})
}

// GetSupportedFileTypes 返回前端可选择的文件类型及大小上限。
func (h *UploadHandler) GetSupportedFileTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "获取支持的文件类型成功",
		"data": gin.H{
			"extensions":   model.SupportedExtensions(),
			"maxSizeBytes": model.MaxFileSizeBytes,
		},
	})
}

// Stream 通过 WebSocket 推送任务变化：先发送一次完整快照，之后逐条推送更新。
func (h *UploadHandler) Stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	updates, unsubscribe := h.uploadService.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	// 客户端不会发送数据，读循环只用于发现连接关闭
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(gin.H{"type": "snapshot", "tasks": h.uploadService.List()}); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(gin.H{"type": "task", "task": task}); err != nil {
				log.Warnf("推送上传进度失败: %v", err)
				return
			}
		}
	}
}
