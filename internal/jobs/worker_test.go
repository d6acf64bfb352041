package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockJobProcessor is a mock implementation of JobProcessor
type MockJobProcessor struct {
	mock.Mock
}

func (m *MockJobProcessor) ProcessJobs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockReplayExecutor is a mock implementation of ReplayExecutor
type MockReplayExecutor struct {
	mock.Mock
}

func (m *MockReplayExecutor) ExecuteNext(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func TestWorker_StartStop(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker("test", mockProcessor, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(200 * time.Millisecond)

	worker.Stop()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

func TestWorker_ContextCancellation(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(errors.New("transient"))

	worker := NewWorker("test", mockProcessor, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(150 * time.Millisecond)
	cancel()
	wg.Wait()

	// Errors are logged and the loop keeps polling.
	assert.GreaterOrEqual(t, len(mockProcessor.Calls), 2)
}

func TestWorker_ProcessesOnStart(t *testing.T) {
	processed := make(chan struct{}, 1)
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil).Run(func(mock.Arguments) {
		select {
		case processed <- struct{}{}:
		default:
		}
	})

	worker := NewWorker("test", mockProcessor, time.Hour, nil)
	go worker.Start(context.Background())
	defer worker.Stop()

	select {
	case <-processed:
	case <-time.After(time.Second):
		t.Fatal("worker did not process on start")
	}
}

func TestWorker_Wake(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil).Run(func(mock.Arguments) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	worker := NewWorker("test", mockProcessor, time.Hour, nil)
	go worker.Start(context.Background())
	defer worker.Stop()

	worker.Wake()
	worker.Wake()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2
	}, time.Second, 10*time.Millisecond)
}

func TestReplayWorker_NothingPending(t *testing.T) {
	executor := new(MockReplayExecutor)
	executor.On("ExecuteNext", mock.Anything).Return(false, nil).Once()

	err := NewReplayWorker(executor, 0, nil).ProcessJobs(context.Background())

	assert.NoError(t, err)
	executor.AssertNumberOfCalls(t, "ExecuteNext", 1)
}

func TestReplayWorker_DrainsUntilEmpty(t *testing.T) {
	executor := new(MockReplayExecutor)
	executor.On("ExecuteNext", mock.Anything).Return(true, nil).Twice()
	executor.On("ExecuteNext", mock.Anything).Return(false, nil).Once()

	err := NewReplayWorker(executor, 10, nil).ProcessJobs(context.Background())

	assert.NoError(t, err)
	executor.AssertNumberOfCalls(t, "ExecuteNext", 3)
}

func TestReplayWorker_BoundedPerTick(t *testing.T) {
	executor := new(MockReplayExecutor)
	executor.On("ExecuteNext", mock.Anything).Return(true, nil)

	err := NewReplayWorker(executor, 2, nil).ProcessJobs(context.Background())

	assert.NoError(t, err)
	executor.AssertNumberOfCalls(t, "ExecuteNext", 2)
}

func TestReplayWorker_ExecutorError(t *testing.T) {
	executor := new(MockReplayExecutor)
	executor.On("ExecuteNext", mock.Anything).Return(false, errors.New("database error"))

	err := NewReplayWorker(executor, 3, nil).ProcessJobs(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute replay run")
	executor.AssertNumberOfCalls(t, "ExecuteNext", 1)
}

func TestReplayWorker_StopsOnCancelledContext(t *testing.T) {
	executor := new(MockReplayExecutor)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewReplayWorker(executor, 3, nil).ProcessJobs(ctx)

	assert.NoError(t, err)
	executor.AssertNotCalled(t, "ExecuteNext", mock.Anything)
}
