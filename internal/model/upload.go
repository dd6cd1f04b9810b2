// Package model 定义了上传模拟相关的结构体。
package model

import "time"

// UploadStatus 是模拟上传任务的生命周期状态。
type UploadStatus string

const (
	UploadStatusUploading  UploadStatus = "uploading"
	UploadStatusProcessing UploadStatus = "processing"
	UploadStatusCompleted  UploadStatus = "completed"
	UploadStatusError      UploadStatus = "error"
)

// Terminal 报告状态是否不再变化。
func (s UploadStatus) Terminal() bool {
	return s == UploadStatusCompleted || s == UploadStatusError
}

// FileDescriptor 描述用户选择或拖入的一个文件。
type FileDescriptor struct {
	Name      string `json:"name" binding:"required"`
	SizeBytes int64  `json:"size"`
	MimeType  string `json:"type"`
}

// UploadTask 记录单个文件的模拟上传/处理过程。
type UploadTask struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	SizeBytes int64        `json:"size"`
	MimeType  string       `json:"type"`
	Category  string       `json:"category"`
	Status    UploadStatus `json:"status"`
	Progress  float64      `json:"progress"` // [0,100]
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

// DocumentCategory 是上传时可选的文档分类。
type DocumentCategory struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// DefaultCategory 在未选择分类或分类未知时使用。
const DefaultCategory = "other"

// DocumentCategories 返回可选分类列表，每次调用返回新切片。
func DocumentCategories() []DocumentCategory {
	return []DocumentCategory{
		{Value: "contract", Label: "Contract"},
		{Value: "nda", Label: "Non-Disclosure Agreement"},
		{Value: "lease", Label: "Lease Agreement"},
		{Value: "employment", Label: "Employment Document"},
		{Value: "terms", Label: "Terms of Service"},
		{Value: "privacy", Label: "Privacy Policy"},
		{Value: DefaultCategory, Label: "Other Legal Document"},
	}
}

// NormalizeCategory 把空值或未知分类映射为 DefaultCategory。
func NormalizeCategory(category string) string {
	for _, c := range DocumentCategories() {
		if c.Value == category {
			return category
		}
	}
	return DefaultCategory
}

// MaxFileSizeBytes 是前端提示的单文件大小上限，模拟器本身不强制。
const MaxFileSizeBytes int64 = 10 * 1024 * 1024

// SupportedExtensions 返回前端文件选择器接受的扩展名。
func SupportedExtensions() []string {
	return []string{".pdf", ".doc", ".docx"}
}
