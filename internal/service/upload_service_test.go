package service

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"legal-assistant-go/internal/config"
	"legal-assistant-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constRand 总是返回同一个值，使进度增量可预测。
type constRand float64

func (r constRand) Float64() float64 { return float64(r) }

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.UploadEvent
}

func (p *recordingPublisher) PublishUploadEvent(_ context.Context, event model.UploadEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) statuses(taskID string) []model.UploadStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.UploadStatus
	for _, e := range p.events {
		if e.TaskID == taskID {
			out = append(out, e.Status)
		}
	}
	return out
}

// manualConfig 让后台 ticker 实际上不会触发，由测试直接调用 tick。
func manualConfig() config.UploadConfig {
	return config.UploadConfig{
		TickInterval: time.Hour,
		MaxIncrement: 15,
		SettleDelay:  20 * time.Millisecond,
		MaxDuration:  time.Hour,
	}
}

func fastConfig() config.UploadConfig {
	return config.UploadConfig{
		TickInterval: time.Millisecond,
		MaxIncrement: 15,
		SettleDelay:  10 * time.Millisecond,
		MaxDuration:  5 * time.Second,
	}
}

func TestEnqueueCreatesUploadingTasks(t *testing.T) {
	svc := NewUploadService(manualConfig(), nil, constRand(1))
	defer svc.Close()

	tasks, err := svc.Enqueue([]model.FileDescriptor{
		{Name: "lease.pdf", SizeBytes: 1000, MimeType: "application/pdf"},
		{Name: "nda.docx", SizeBytes: 2000},
	}, "lease")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.NotEqual(t, tasks[0].ID, tasks[1].ID)
	for _, task := range tasks {
		assert.Equal(t, model.UploadStatusUploading, task.Status)
		assert.Zero(t, task.Progress)
		assert.Equal(t, "lease", task.Category)
		assert.False(t, task.CreatedAt.IsZero())
	}

	listed := svc.List()
	require.Len(t, listed, 2)
	assert.Equal(t, "lease.pdf", listed[0].Name)
	assert.Equal(t, "nda.docx", listed[1].Name)
}

func TestEnqueueDefaultCategory(t *testing.T) {
	svc := NewUploadService(manualConfig(), nil, constRand(1))
	defer svc.Close()

	tasks, err := svc.Enqueue([]model.FileDescriptor{{Name: "a.pdf"}}, "")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultCategory, tasks[0].Category)
}

func TestTickTwoStageCompletion(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewUploadService(manualConfig(), pub, constRand(1))
	defer svc.Close()
	sim := svc.(*uploadService)

	tasks, err := svc.Enqueue([]model.FileDescriptor{{Name: "lease.pdf", SizeBytes: 1000}}, "")
	require.NoError(t, err)
	id := tasks[0].ID

	// 15 * 6 = 90，第 7 次 tick 被截断到 100
	for i := 1; i <= 6; i++ {
		require.True(t, sim.tick(id))
		task, err := svc.Get(id)
		require.NoError(t, err)
		assert.Equal(t, model.UploadStatusUploading, task.Status)
		assert.InDelta(t, float64(15*i), task.Progress, 1e-9)
	}

	assert.False(t, sim.tick(id))
	task, err := svc.Get(id)
	require.NoError(t, err)
	assert.Equal(t, model.UploadStatusProcessing, task.Status)
	assert.Equal(t, 100.0, task.Progress)

	// 到达 100 后继续 tick 不会改变任何东西
	assert.False(t, sim.tick(id))

	require.Eventually(t, func() bool {
		task, err := svc.Get(id)
		return err == nil && task.Status == model.UploadStatusCompleted
	}, time.Second, 5*time.Millisecond)

	task, _ = svc.Get(id)
	assert.Equal(t, 100.0, task.Progress)
	assert.Equal(t, []model.UploadStatus{
		model.UploadStatusUploading,
		model.UploadStatusProcessing,
		model.UploadStatusCompleted,
	}, pub.statuses(id))
}

func TestProgressMonotonicWithTimers(t *testing.T) {
	svc := NewUploadService(fastConfig(), nil, rand.New(rand.NewSource(42)))
	defer svc.Close()

	updates, unsubscribe := svc.Subscribe()
	defer unsubscribe()

	tasks, err := svc.Enqueue([]model.FileDescriptor{{Name: "contract.pdf", SizeBytes: 5000}}, "contract")
	require.NoError(t, err)
	id := tasks[0].ID

	var seen []model.UploadTask
	timeout := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case task := <-updates:
			if task.ID != id {
				continue
			}
			seen = append(seen, task)
			done = task.Status == model.UploadStatusCompleted
		case <-timeout:
			t.Fatal("task did not complete in time")
		}
	}

	last := -1.0
	sawProcessing := false
	for _, task := range seen {
		assert.GreaterOrEqual(t, task.Progress, last)
		assert.LessOrEqual(t, task.Progress, 100.0)
		last = task.Progress
		switch task.Status {
		case model.UploadStatusProcessing:
			sawProcessing = true
			assert.Equal(t, 100.0, task.Progress)
		case model.UploadStatusCompleted:
			assert.True(t, sawProcessing, "completed must be preceded by processing")
		}
	}
}

func TestRemoveStopsFurtherMutation(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxIncrement = 1
	svc := NewUploadService(cfg, nil, constRand(0.5))
	defer svc.Close()

	updates, unsubscribe := svc.Subscribe()
	defer unsubscribe()

	tasks, err := svc.Enqueue([]model.FileDescriptor{{Name: "slow.pdf"}}, "")
	require.NoError(t, err)
	id := tasks[0].ID

	require.Eventually(t, func() bool {
		task, err := svc.Get(id)
		return err == nil && task.Progress > 0
	}, time.Second, time.Millisecond)

	require.NoError(t, svc.Remove(id))
	_, err = svc.Get(id)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.Empty(t, svc.List())

	// 移除之前已经排队的通知全部丢弃
	for drained := false; !drained; {
		select {
		case <-updates:
		default:
			drained = true
		}
	}
	time.Sleep(30 * time.Millisecond)
	for {
		select {
		case task := <-updates:
			assert.NotEqual(t, id, task.ID, "removed task must not be mutated")
		default:
			assert.ErrorIs(t, svc.Remove(id), ErrTaskNotFound)
			return
		}
	}
}

func TestRemoveDuringProcessingCancelsSettle(t *testing.T) {
	pub := &recordingPublisher{}
	cfg := manualConfig()
	cfg.SettleDelay = 30 * time.Millisecond
	svc := NewUploadService(cfg, pub, constRand(1))
	defer svc.Close()
	sim := svc.(*uploadService)

	tasks, err := svc.Enqueue([]model.FileDescriptor{{Name: "lease.pdf"}}, "")
	require.NoError(t, err)
	id := tasks[0].ID
	for sim.tick(id) {
	}
	require.NoError(t, svc.Remove(id))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, []model.UploadStatus{
		model.UploadStatusUploading,
		model.UploadStatusProcessing,
	}, pub.statuses(id))
}

func TestStalledUploadTimesOut(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxDuration = 30 * time.Millisecond
	svc := NewUploadService(cfg, nil, constRand(0))
	defer svc.Close()

	tasks, err := svc.Enqueue([]model.FileDescriptor{{Name: "stuck.pdf"}}, "")
	require.NoError(t, err)
	id := tasks[0].ID

	require.Eventually(t, func() bool {
		task, err := svc.Get(id)
		return err == nil && task.Status == model.UploadStatusError
	}, time.Second, 5*time.Millisecond)

	task, _ := svc.Get(id)
	assert.Equal(t, reasonTimedOut, task.Error)
	assert.Zero(t, task.Progress)

	// error 是终态，不会自动重试
	time.Sleep(20 * time.Millisecond)
	task, _ = svc.Get(id)
	assert.Equal(t, model.UploadStatusError, task.Status)
}

func TestFail(t *testing.T) {
	svc := NewUploadService(manualConfig(), nil, constRand(1))
	defer svc.Close()
	sim := svc.(*uploadService)

	tasks, err := svc.Enqueue([]model.FileDescriptor{{Name: "a.pdf"}, {Name: "b.pdf"}}, "nda")
	require.NoError(t, err)

	require.NoError(t, svc.Fail(tasks[0].ID, "connection reset"))
	failed, _ := svc.Get(tasks[0].ID)
	assert.Equal(t, model.UploadStatusError, failed.Status)
	assert.Equal(t, "connection reset", failed.Error)
	assert.False(t, sim.tick(tasks[0].ID))

	// 其他任务不受影响
	assert.True(t, sim.tick(tasks[1].ID))
	other, _ := svc.Get(tasks[1].ID)
	assert.Equal(t, model.UploadStatusUploading, other.Status)

	assert.ErrorIs(t, svc.Fail("missing", "x"), ErrTaskNotFound)
}

func TestCloseRejectsNewTasks(t *testing.T) {
	svc := NewUploadService(fastConfig(), nil, constRand(0.1))
	updates, _ := svc.Subscribe()

	_, err := svc.Enqueue([]model.FileDescriptor{{Name: "a.pdf"}}, "")
	require.NoError(t, err)

	svc.Close()
	svc.Close()

	_, err = svc.Enqueue([]model.FileDescriptor{{Name: "b.pdf"}}, "")
	assert.ErrorIs(t, err, ErrUploadServiceClosed)

	for range updates {
	}
	late, _ := svc.Subscribe()
	_, open := <-late
	assert.False(t, open)
}

func TestZeroConfigKeepsTimerBounds(t *testing.T) {
	svc := NewUploadService(config.UploadConfig{MaxDuration: -time.Second}, nil, constRand(0))
	defer svc.Close()
	sim := svc.(*uploadService)

	assert.Equal(t, defaultTickInterval, sim.cfg.TickInterval)
	assert.Equal(t, defaultMaxDuration, sim.cfg.MaxDuration)
}

func TestSeedTasks(t *testing.T) {
	cfg := manualConfig()
	cfg.Seed = []config.UploadSeed{
		{Name: "Employment_Contract_TechCorp.pdf", Size: 2400000, Type: "application/pdf", Category: "employment", Status: "completed", Progress: 100, Age: time.Hour},
		{Name: "NDA_Marketing_Agency.pdf", Size: 1800000, Type: "application/pdf", Category: "nda", Status: "processing", Progress: 68, Age: 30 * time.Minute},
	}
	svc := NewUploadService(cfg, nil, constRand(1))
	defer svc.Close()
	sim := svc.(*uploadService)

	tasks := svc.List()
	require.Len(t, tasks, 2)

	done := tasks[0]
	assert.Equal(t, "Employment_Contract_TechCorp.pdf", done.Name)
	assert.Equal(t, model.UploadStatusCompleted, done.Status)
	assert.Equal(t, float64(100), done.Progress)
	assert.Equal(t, "employment", done.Category)
	assert.WithinDuration(t, time.Now().Add(-time.Hour), done.CreatedAt, time.Minute)
	assert.False(t, sim.tick(done.ID))

	// 未结束的示例从原进度继续上传，仍须经过 processing 才能完成
	pending := tasks[1]
	assert.Equal(t, model.UploadStatusUploading, pending.Status)
	assert.InDelta(t, 68.0, pending.Progress, 1e-9)
	assert.True(t, sim.tick(pending.ID))
	assert.True(t, sim.tick(pending.ID))
	assert.False(t, sim.tick(pending.ID))
	task, _ := svc.Get(pending.ID)
	assert.Equal(t, model.UploadStatusProcessing, task.Status)
	assert.Equal(t, float64(100), task.Progress)

	require.Eventually(t, func() bool {
		task, err := svc.Get(pending.ID)
		return err == nil && task.Status == model.UploadStatusCompleted
	}, time.Second, 5*time.Millisecond)
}
