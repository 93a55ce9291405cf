package hooks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wormsql/worm/internal/orm/storage"
)

func TestRunOrderAndMutation(t *testing.T) {
	exec := NewExecutor(nil, nil)

	var order []string
	exec.Register("post", BeforeSave, &Hook{Name: "slug", Fn: func(ctx context.Context, conn storage.Conn, record map[string]interface{}) error {
		order = append(order, "slug")
		record["slug"] = "hello-world"
		return nil
	}})
	exec.Register("post", BeforeSave, &Hook{Name: "audit", Fn: func(ctx context.Context, conn storage.Conn, record map[string]interface{}) error {
		order = append(order, "audit")
		return nil
	}})

	record := map[string]interface{}{"title": "Hello world"}
	if err := exec.Run(context.Background(), nil, "post", BeforeSave, record); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(order) != 2 || order[0] != "slug" || order[1] != "audit" {
		t.Errorf("expected hooks in registration order, got %v", order)
	}
	if record["slug"] != "hello-world" {
		t.Errorf("expected hook to modify record, got %v", record["slug"])
	}

	if !exec.HasHooks("post", BeforeSave) {
		t.Error("expected post to have before_save hooks")
	}
	if exec.HasHooks("post", AfterSave) || exec.HasHooks("comment", BeforeSave) {
		t.Error("unexpected hooks reported")
	}
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	exec := NewExecutor(nil, nil)
	boom := errors.New("boom")

	ran := false
	exec.Register("post", AfterSave, &Hook{Name: "fail", Fn: func(ctx context.Context, conn storage.Conn, record map[string]interface{}) error {
		return boom
	}})
	exec.Register("post", AfterSave, &Hook{Name: "later", Fn: func(ctx context.Context, conn storage.Conn, record map[string]interface{}) error {
		ran = true
		return nil
	}})

	err := exec.Run(context.Background(), nil, "post", AfterSave, map[string]interface{}{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped hook error, got %v", err)
	}
	if err.Error() != `after_save hook "fail" on post failed: boom` {
		t.Errorf("unexpected error message: %s", err)
	}
	if ran {
		t.Error("hooks after a failure must not run")
	}
}

func TestAsyncHookGetsCopy(t *testing.T) {
	queue := NewAsyncQueue(1, nil)
	queue.Start()
	defer queue.Shutdown()

	exec := NewExecutor(queue, nil)

	got := make(chan map[string]interface{}, 1)
	exec.Register("post", AfterSave, &Hook{Name: "notify", Async: true, Fn: func(ctx context.Context, conn storage.Conn, record map[string]interface{}) error {
		if conn != nil {
			t.Error("async hooks must not receive the save connection")
		}
		got <- record
		return nil
	}})

	record := map[string]interface{}{
		"id":       int64(1),
		"comments": []map[string]interface{}{{"body": "first"}},
	}
	if err := exec.Run(context.Background(), nil, "post", AfterSave, record); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// mutate after enqueueing; the hook must still see the original values
	record["comments"].([]map[string]interface{})[0]["body"] = "changed"

	select {
	case r := <-got:
		if r["comments"].([]map[string]interface{})[0]["body"] != "first" {
			t.Error("async hook saw a mutation made after Run")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("async hook did not run")
	}
}

func TestAsyncHookWithoutQueue(t *testing.T) {
	exec := NewExecutor(nil, nil)
	exec.Register("post", AfterSave, &Hook{Name: "notify", Async: true, Fn: func(ctx context.Context, conn storage.Conn, record map[string]interface{}) error {
		t.Error("hook must not run without a queue")
		return nil
	}})

	// enqueue failures are logged, never returned
	if err := exec.Run(context.Background(), nil, "post", AfterSave, map[string]interface{}{}); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestAsyncQueue_MultipleWorkers(t *testing.T) {
	queue := NewAsyncQueue(4, nil)
	queue.Start()

	taskCount := 20
	var executed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(taskCount)

	for i := 0; i < taskCount; i++ {
		err := queue.Enqueue(AsyncTask{
			Name: "count",
			Fn: func(ctx context.Context) error {
				defer wg.Done()
				executed.Add(1)
				return nil
			},
		})
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	wg.Wait()
	queue.Shutdown()

	if executed.Load() != int32(taskCount) {
		t.Errorf("expected %d tasks, got %d", taskCount, executed.Load())
	}
}

func TestAsyncQueue_PanicRecovery(t *testing.T) {
	queue := NewAsyncQueue(1, nil)
	queue.Start()
	defer queue.Shutdown()

	if err := queue.Enqueue(AsyncTask{Name: "panic", Fn: func(ctx context.Context) error { panic("boom") }}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	done := make(chan struct{})
	if err := queue.Enqueue(AsyncTask{Name: "after", Fn: func(ctx context.Context) error {
		close(done)
		return nil
	}}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive a panicking task")
	}
}

func TestAsyncQueue_Closed(t *testing.T) {
	queue := NewAsyncQueue(0, nil)

	task := AsyncTask{Name: "noop", Fn: func(ctx context.Context) error { return nil }}
	if err := queue.Enqueue(task); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed before Start, got %v", err)
	}

	queue.Start()
	queue.Shutdown()
	if err := queue.Enqueue(task); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed after Shutdown, got %v", err)
	}

	// Stop after Shutdown is a no-op
	queue.Stop()
}
