// Package model 包含了应用的数据模型定义。
package model

import "time"

// Role 标识消息的发送方。
type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// ChatMessage 代表会话中的单条消息。追加之后不再修改。
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// AssistantState 是某个助手会话在某一时刻的快照。
type AssistantState struct {
	SessionID          string        `json:"sessionId"`
	History            []ChatMessage `json:"history"`
	PendingInput       string        `json:"pendingInput"`
	IsAwaitingResponse bool          `json:"isAwaitingResponse"`
	LastError          string        `json:"lastError,omitempty"`
}
