// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"legal-assistant-go/internal/config"
	"legal-assistant-go/internal/model"
	"legal-assistant-go/pkg/log"

	"github.com/google/uuid"
)

var (
	// ErrTaskNotFound 表示上传任务不存在或已被移除。
	ErrTaskNotFound = errors.New("upload task not found")
	// ErrUploadServiceClosed 表示模拟器已关闭，不再接受新任务。
	ErrUploadServiceClosed = errors.New("upload service is closed")
)

const (
	reasonTimedOut      = "upload timed out"
	defaultTickInterval = 500 * time.Millisecond
	defaultMaxDuration  = 8 * time.Second
	subscriberQueue     = 64
	publishTimeout      = 5 * time.Second
)

// RandSource 是进度增量使用的随机数来源，*rand.Rand 满足该接口。
type RandSource interface {
	Float64() float64
}

// EventPublisher 接收上传任务的状态变化事件。
type EventPublisher interface {
	PublishUploadEvent(ctx context.Context, event model.UploadEvent) error
}

// UploadService 模拟文件上传：为每个文件生成单调递增、最终结束的进度，不做真实传输。
type UploadService interface {
	Enqueue(files []model.FileDescriptor, category string) ([]model.UploadTask, error)
	Get(id string) (model.UploadTask, error)
	List() []model.UploadTask
	// Remove 删除任务并立即停止驱动它的定时器。
	Remove(id string) error
	// Fail 把未结束的任务置为 error，用于上报传输失败；不会自动重试。
	Fail(id, reason string) error
	// Subscribe 返回任务变化的通知通道；调用返回的函数取消订阅。
	Subscribe() (<-chan model.UploadTask, func())
	Close()
}

type uploadEntry struct {
	task   model.UploadTask
	cancel context.CancelFunc
	settle *time.Timer
}

type uploadService struct {
	cfg       config.UploadConfig
	publisher EventPublisher
	rng       RandSource
	now       func() time.Time

	mu          sync.Mutex
	tasks       map[string]*uploadEntry
	order       []string
	subscribers map[int]chan model.UploadTask
	nextSubID   int
	closed      bool

	wg sync.WaitGroup
}

// NewUploadService 创建一个新的上传模拟器。publisher 和 rng 可以为 nil。
// cfg.Seed 中的示例任务在返回前写入任务列表。
func NewUploadService(cfg config.UploadConfig, publisher EventPublisher, rng RandSource) UploadService {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	// 每个任务的定时器都必须有上限
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = defaultMaxDuration
	}
	s := &uploadService{
		cfg:         cfg,
		publisher:   publisher,
		rng:         rng,
		now:         time.Now,
		tasks:       make(map[string]*uploadEntry),
		subscribers: make(map[int]chan model.UploadTask),
	}
	s.seed(cfg.Seed)
	return s
}

// seed 写入示例任务。已结束的示例原样保留；
// 未结束的示例以 uploading 状态从给定进度继续，由正常的调度推进。
func (s *uploadService) seed(seeds []config.UploadSeed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sd := range seeds {
		status := model.UploadStatus(sd.Status)
		progress := math.Min(math.Max(sd.Progress, 0), 100)
		if !status.Terminal() {
			status = model.UploadStatusUploading
			progress = math.Min(progress, 99)
		}
		ctx, cancel := context.WithCancel(context.Background())
		task := model.UploadTask{
			ID:        uuid.NewString(),
			Name:      sd.Name,
			SizeBytes: sd.Size,
			MimeType:  sd.Type,
			Category:  model.NormalizeCategory(sd.Category),
			Status:    status,
			Progress:  progress,
			CreatedAt: s.now().Add(-sd.Age),
		}
		s.tasks[task.ID] = &uploadEntry{task: task, cancel: cancel}
		s.order = append(s.order, task.ID)
		if status == model.UploadStatusUploading {
			s.wg.Add(1)
			go s.run(ctx, task.ID)
		}
		log.Infow("示例上传任务已载入", "task", task.ID, "file", task.Name, "status", task.Status)
	}
}

// Enqueue 为每个文件描述创建一个 uploading 任务，并各自独立调度。
func (s *uploadService) Enqueue(files []model.FileDescriptor, category string) ([]model.UploadTask, error) {
	category = model.NormalizeCategory(category)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrUploadServiceClosed
	}
	created := make([]model.UploadTask, 0, len(files))
	starts := make([]func(), 0, len(files))
	for _, f := range files {
		ctx, cancel := context.WithCancel(context.Background())
		task := model.UploadTask{
			ID:        uuid.NewString(),
			Name:      f.Name,
			SizeBytes: f.SizeBytes,
			MimeType:  f.MimeType,
			Category:  category,
			Status:    model.UploadStatusUploading,
			Progress:  0,
			CreatedAt: s.now(),
		}
		s.tasks[task.ID] = &uploadEntry{task: task, cancel: cancel}
		s.order = append(s.order, task.ID)
		s.broadcastLocked(task)
		created = append(created, task)

		id := task.ID
		s.wg.Add(1)
		starts = append(starts, func() { go s.run(ctx, id) })
	}
	s.mu.Unlock()

	for i, task := range created {
		log.Infow("上传任务已创建", "task", task.ID, "file", task.Name, "size", task.SizeBytes, "category", task.Category)
		s.publish(task)
		starts[i]()
	}
	return created, nil
}

func (s *uploadService) Get(id string) (model.UploadTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tasks[id]
	if !ok {
		return model.UploadTask{}, ErrTaskNotFound
	}
	return e.task, nil
}

// List 按创建顺序返回所有活动任务。
func (s *uploadService) List() []model.UploadTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.UploadTask, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id].task)
	}
	return out
}

func (s *uploadService) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	s.stopLocked(e)
	delete(s.tasks, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	log.Infow("上传任务已移除", "task", id, "status", e.task.Status)
	return nil
}

func (s *uploadService) Fail(id, reason string) error {
	s.mu.Lock()
	e, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return ErrTaskNotFound
	}
	if e.task.Status.Terminal() {
		s.mu.Unlock()
		return nil
	}
	s.stopLocked(e)
	e.task.Status = model.UploadStatusError
	e.task.Error = reason
	s.broadcastLocked(e.task)
	task := e.task
	s.mu.Unlock()

	log.Warnw("上传任务失败", "task", id, "reason", reason, "progress", task.Progress)
	s.publish(task)
	return nil
}

func (s *uploadService) Subscribe() (<-chan model.UploadTask, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan model.UploadTask, subscriberQueue)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(sub)
			}
		})
	}
}

// Close 停止所有定时器并等待任务 goroutine 退出。任务记录保留。
func (s *uploadService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, e := range s.tasks {
		s.stopLocked(e)
	}
	for id, sub := range s.subscribers {
		delete(s.subscribers, id)
		close(sub)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// run 以固定间隔推进进度，直到任务离开 uploading、被取消或超过最长时间。
func (s *uploadService) run(ctx context.Context, id string) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	deadline := time.NewTimer(s.cfg.MaxDuration)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			if task, err := s.Get(id); err == nil && task.Status == model.UploadStatusUploading {
				_ = s.Fail(id, reasonTimedOut)
			}
			return
		case <-ticker.C:
			if !s.tick(id) {
				return
			}
		}
	}
}

// tick 推进一次进度，返回任务是否仍处于 uploading。
// 进度首次到达 100 时立即进入 processing，并在 SettleDelay 之后置为 completed。
func (s *uploadService) tick(id string) bool {
	s.mu.Lock()
	e, ok := s.tasks[id]
	if !ok || s.closed || e.task.Status != model.UploadStatusUploading {
		s.mu.Unlock()
		return false
	}

	increment := s.rng.Float64() * s.cfg.MaxIncrement
	e.task.Progress = math.Min(e.task.Progress+math.Max(increment, 0), 100)
	log.Debugw("上传进度", "task", id, "progress", e.task.Progress)
	if e.task.Progress < 100 {
		s.broadcastLocked(e.task)
		s.mu.Unlock()
		return true
	}

	e.task.Status = model.UploadStatusProcessing
	s.broadcastLocked(e.task)
	task := e.task
	s.mu.Unlock()

	log.Infow("上传完成，进入处理阶段", "task", id, "file", task.Name)
	s.publish(task)

	// processing 事件发布之后再启动结算定时器，保证事件顺序
	s.mu.Lock()
	if e, ok := s.tasks[id]; ok && !s.closed && e.task.Status == model.UploadStatusProcessing {
		e.settle = time.AfterFunc(s.cfg.SettleDelay, func() { s.settle(id) })
	}
	s.mu.Unlock()
	return false
}

func (s *uploadService) settle(id string) {
	s.mu.Lock()
	e, ok := s.tasks[id]
	if !ok || s.closed || e.task.Status != model.UploadStatusProcessing {
		s.mu.Unlock()
		return
	}
	e.task.Status = model.UploadStatusCompleted
	s.stopLocked(e)
	s.broadcastLocked(e.task)
	task := e.task
	s.mu.Unlock()

	log.Infow("上传任务已完成", "task", id, "file", task.Name)
	s.publish(task)
}

func (s *uploadService) stopLocked(e *uploadEntry) {
	e.cancel()
	if e.settle != nil {
		e.settle.Stop()
		e.settle = nil
	}
}

// broadcastLocked 非阻塞地通知所有订阅者；处理过慢的订阅者会丢失中间状态。
func (s *uploadService) broadcastLocked(task model.UploadTask) {
	for _, sub := range s.subscribers {
		select {
		case sub <- task:
		default:
		}
	}
}

func (s *uploadService) publish(task model.UploadTask) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.publisher.PublishUploadEvent(ctx, model.NewUploadEvent(task, s.now())); err != nil {
		log.Errorw("发布上传事件失败", "task", task.ID, "status", task.Status, "error", err)
	}
}
