// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"legal-assistant-go/internal/config"
	"legal-assistant-go/internal/model"
	"legal-assistant-go/pkg/llm"
	"legal-assistant-go/pkg/log"

	"github.com/google/uuid"
)

var (
	// ErrSessionNotFound 表示会话不存在或已结束。
	ErrSessionNotFound = errors.New("assistant session not found")
	// ErrRequestInFlight 表示当前会话已有一个请求在等待响应。
	ErrRequestInFlight = errors.New("a request is already awaiting a response")
)

const defaultSessionTTL = 30 * time.Minute

// SubmitResult 描述一次 Submit 的结果。
// Submitted 为 false 表示输入为空被忽略，此时其余字段均为空。
type SubmitResult struct {
	Submitted bool
	User      model.ChatMessage
	Reply     model.ChatMessage
	// Notice 在补全失败时非空，内容同 AssistantState.LastError
	Notice string
}

// AssistantService 定义了助手会话的接口。
type AssistantService interface {
	CreateSession() *AssistantSession
	GetSession(id string) (*AssistantSession, error)
	EndSession(id string) error
	// Guidance 返回会话开始时展示的推荐操作和学习资源。
	Guidance() model.Guidance
	// Complete 是无状态的单次调用；systemPrompt 为空时使用默认系统指令。
	Complete(ctx context.Context, message, systemPrompt string) (string, error)
}

type assistantService struct {
	llmClient    llm.Client
	cfg          config.LLMConfig
	assistantCfg config.AssistantConfig
	now          func() time.Time

	mu       sync.Mutex
	sessions map[string]*AssistantSession
}

// NewAssistantService 创建一个新的 AssistantService 实例。
// SessionTTL 非正时使用默认的 30 分钟。
func NewAssistantService(llmClient llm.Client, cfg config.LLMConfig, assistantCfg config.AssistantConfig) AssistantService {
	if assistantCfg.SessionTTL <= 0 {
		assistantCfg.SessionTTL = defaultSessionTTL
	}
	return &assistantService{
		llmClient:    llmClient,
		cfg:          cfg,
		assistantCfg: assistantCfg,
		now:          time.Now,
		sessions:     make(map[string]*AssistantSession),
	}
}

// CreateSession 开始一个新会话，历史中预置一条问候消息。
// 每次创建时顺带回收空闲超时的会话。
func (s *assistantService) CreateSession() *AssistantSession {
	session := NewAssistantSession(s.llmClient, s.cfg)
	session.now = s.now
	session.lastActive = s.now()

	s.mu.Lock()
	s.reapLocked()
	s.sessions[session.ID()] = session
	s.mu.Unlock()
	log.Infow("助手会话已创建", "session", session.ID())
	return session
}

func (s *assistantService) GetSession(id string) (*AssistantSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.expired(session) {
		delete(s.sessions, id)
		log.Infow("助手会话空闲超时", "session", id)
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *assistantService) Guidance() model.Guidance {
	g := s.assistantCfg.Guidance
	return model.Guidance{
		Actions:   append([]model.GuidanceAction{}, g.Actions...),
		Resources: append([]model.GuidanceResource{}, g.Resources...),
	}
}

// reapLocked 删除所有空闲超时的会话。
func (s *assistantService) reapLocked() {
	for id, session := range s.sessions {
		if s.expired(session) {
			delete(s.sessions, id)
			log.Infow("助手会话空闲超时", "session", id)
		}
	}
}

// expired 报告会话是否空闲超时；正在等待回复的会话不会过期。
func (s *assistantService) expired(session *AssistantSession) bool {
	lastActive, awaiting := session.activity()
	return !awaiting && s.now().Sub(lastActive) > s.assistantCfg.SessionTTL
}

// EndSession 丢弃会话及其全部历史。
func (s *assistantService) EndSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	log.Infow("助手会话已结束", "session", id)
	return nil
}

func (s *assistantService) Complete(ctx context.Context, message, systemPrompt string) (string, error) {
	if systemPrompt == "" {
		systemPrompt = s.cfg.Prompt.System
	}
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	content, err := s.llmClient.Complete(ctx, composeMessages(systemPrompt, message), nil)
	if err != nil {
		logCompletionError("", err)
		return "", err
	}
	if content == "" {
		return s.cfg.Prompt.NoContent, nil
	}
	return content, nil
}

// AssistantSession 管理一段线性对话，并负责所有对补全服务的调用。
// 同一时刻最多只有一个请求在等待响应。
type AssistantSession struct {
	id        string
	llmClient llm.Client
	prompts   config.LLMPromptConfig
	timeout   time.Duration
	now       func() time.Time

	mu           sync.Mutex
	history      []model.ChatMessage
	pendingInput string
	awaiting     bool
	lastError    string
	lastActive   time.Time
}

// NewAssistantSession 创建独立的会话；问候语非空时作为第一条助手消息写入历史。
func NewAssistantSession(llmClient llm.Client, cfg config.LLMConfig) *AssistantSession {
	s := &AssistantSession{
		id:        uuid.NewString(),
		llmClient: llmClient,
		prompts:   cfg.Prompt,
		timeout:   cfg.Timeout,
		now:       time.Now,
	}
	s.lastActive = s.now()
	if cfg.Prompt.Greeting != "" {
		s.appendLocked(model.RoleAssistant, cfg.Prompt.Greeting)
	}
	return s
}

func (s *AssistantSession) ID() string { return s.id }

// SetPendingInput 记录尚未提交的输入。
func (s *AssistantSession) SetPendingInput(text string) {
	s.mu.Lock()
	s.pendingInput = text
	s.lastActive = s.now()
	s.mu.Unlock()
}

func (s *AssistantSession) activity() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive, s.awaiting
}

// State 返回当前状态的快照，History 为副本。
func (s *AssistantSession) State() model.AssistantState {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := make([]model.ChatMessage, len(s.history))
	copy(history, s.history)
	return model.AssistantState{
		SessionID:          s.id,
		History:            history,
		PendingInput:       s.pendingInput,
		IsAwaitingResponse: s.awaiting,
		LastError:          s.lastError,
	}
}

// Submit 提交一条用户消息并等待助手回复。
// 空白输入直接忽略；已有请求在等待时返回 ErrRequestInFlight 且不修改任何状态。
// 补全失败不会作为 error 返回，而是以兜底回复写入历史。
func (s *AssistantSession) Submit(ctx context.Context, text string) (SubmitResult, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return SubmitResult{}, nil
	}

	s.mu.Lock()
	if s.awaiting {
		s.mu.Unlock()
		return SubmitResult{}, ErrRequestInFlight
	}
	userMsg := s.appendLocked(model.RoleUser, trimmed)
	s.pendingInput = ""
	s.awaiting = true
	s.lastError = ""
	s.lastActive = s.now()
	s.mu.Unlock()

	content, err := s.callCompletion(ctx, trimmed)

	s.mu.Lock()
	// 唯一的释放点：回复写入历史与退出等待状态在同一个临界区内完成
	defer func() {
		s.awaiting = false
		s.lastActive = s.now()
		s.mu.Unlock()
	}()
	result := SubmitResult{Submitted: true, User: userMsg}
	switch {
	case err != nil:
		logCompletionError(s.id, err)
		s.lastError = fmt.Sprintf("%s (%s)", s.prompts.ErrorNotice, describe(err))
		result.Reply = s.appendLocked(model.RoleAssistant, s.prompts.Fallback)
		result.Notice = s.lastError
	case content == "":
		log.Warnw("补全服务未返回内容", "session", s.id)
		result.Reply = s.appendLocked(model.RoleAssistant, s.prompts.NoContent)
	default:
		result.Reply = s.appendLocked(model.RoleAssistant, content)
	}
	return result, nil
}

// callCompletion 调用补全服务，并把 panic 转换为普通错误。
func (s *AssistantSession) callCompletion(ctx context.Context, text string) (content string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("completion call panicked: %v", r)
		}
	}()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	// 只发送系统指令和最新一条用户消息，不回放历史
	return s.llmClient.Complete(ctx, composeMessages(s.prompts.System, text), nil)
}

func (s *AssistantSession) appendLocked(role model.Role, text string) model.ChatMessage {
	msg := model.ChatMessage{
		ID:        newMessageID(),
		Role:      role,
		Text:      text,
		CreatedAt: s.now(),
	}
	s.history = append(s.history, msg)
	return msg
}

// newMessageID 使用 UUIDv7，按创建时间单调可比。
func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func composeMessages(systemPrompt, userInput string) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userInput},
	}
}

// describe 生成面向运维的简短诊断，不包含凭据或响应体。
func describe(err error) string {
	var statusErr *llm.StatusError
	switch {
	case errors.Is(err, llm.ErrMissingAPIKey):
		return "completion service credential is not configured"
	case errors.As(err, &statusErr):
		return fmt.Sprintf("completion service returned status %d", statusErr.StatusCode)
	case errors.Is(err, llm.ErrMalformedResponse):
		return "completion service returned a malformed response"
	case errors.Is(err, context.DeadlineExceeded):
		return "completion request timed out"
	default:
		return "completion service unreachable"
	}
}

func logCompletionError(sessionID string, err error) {
	fields := []interface{}{"kind", llm.Kind(err), "error", err}
	if sessionID != "" {
		fields = append(fields, "session", sessionID)
	}
	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		fields = append(fields, "status", statusErr.StatusCode, "body", statusErr.Body)
	}
	log.Errorw("补全请求失败", fields...)
}
