package model

import "time"

// UploadEvent 在上传任务状态变化时发布到消息队列。
type UploadEvent struct {
	TaskID     string       `json:"task_id"`
	FileName   string       `json:"file_name"`
	Category   string       `json:"category"`
	Status     UploadStatus `json:"status"`
	Progress   float64      `json:"progress"`
	Error      string       `json:"error,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// NewUploadEvent 根据任务当前状态构造事件。
func NewUploadEvent(task UploadTask, at time.Time) UploadEvent {
	return UploadEvent{
		TaskID:     task.ID,
		FileName:   task.Name,
		Category:   task.Category,
		Status:     task.Status,
		Progress:   task.Progress,
		Error:      task.Error,
		OccurredAt: at,
	}
}
