package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fintechx-ops/core/utils"
)

type captureArchive struct {
	mu   sync.Mutex
	jobs []*Job
}

func (c *captureArchive) Save(_ context.Context, job *Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = append(c.jobs, job)
	return nil
}

func (c *captureArchive) saved() []*Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Job(nil), c.jobs...)
}

func waitTerminal(t *testing.T, e *Engine, jobID string) *Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := e.GetJob(jobID)
		if !ok {
			t.Fatalf("job %s disappeared", jobID)
		}
		if job.Terminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish in time", jobID)
	return nil
}

func flagProcessor(failKey string) ProcessorFunc {
	return func(data map[string]any, _ Type) Result {
		if v, ok := data[failKey]; ok && v == true {
			return Result{Error: "forced failure"}
		}
		return Result{Success: true}
	}
}

func TestJobCompletesWhenAllItemsSucceed(t *testing.T) {
	e := NewEngine(nil, utils.NewLogger())
	e.RegisterProcessor(TypePayment, flagProcessor("fail"))

	id, err := e.CreateJob("ok", TypePayment, []map[string]any{{"n": 1}, {"n": 2}, {"n": 3}}, "", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.StartJob(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	job := waitTerminal(t, e, id)
	if job.Status != StatusCompleted {
		t.Fatalf("status %s, want %s", job.Status, StatusCompleted)
	}
	if job.SuccessfulItems != 3 || job.FailedItems != 0 || job.ProcessedItems != 3 {
		t.Fatalf("counters: %+v", job)
	}
	if p := job.Progress(); p != 100.0 {
		t.Fatalf("progress %v, want 100", p)
	}
	if job.StartedAt == nil || job.CompletedAt == nil {
		t.Fatalf("timestamps not stamped: %+v", job)
	}
}

func TestJobPartiallyCompletedWhenSomeItemsFail(t *testing.T) {
	e := NewEngine(nil, utils.NewLogger())
	e.RegisterProcessor(TypeRefund, flagProcessor("fail"))

	items := []map[string]any{{"n": 1}, {"n": 2, "fail": true}, {"n": 3}, {"n": 4, "fail": true}}
	id, err := e.CreateJob("mixed", TypeRefund, items, "", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.StartJob(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	job := waitTerminal(t, e, id)
	if job.Status != StatusPartiallyCompleted {
		t.Fatalf("status %s, want %s", job.Status, StatusPartiallyCompleted)
	}
	if job.SuccessfulItems != 2 || job.FailedItems != 2 {
		t.Fatalf("counters: success=%d failed=%d", job.SuccessfulItems, job.FailedItems)
	}
	// Failed items carry per-item detail.
	for _, item := range job.Items {
		if item.Status == ItemFailed && item.ErrorMessage == "" {
			t.Fatalf("failed item %s has no error message", item.ID)
		}
		if item.ProcessedAt == nil {
			t.Fatalf("item %s not stamped", item.ID)
		}
	}
}

func TestJobFailedWhenAllItemsFail(t *testing.T) {
	e := NewEngine(nil, utils.NewLogger())
	e.RegisterProcessor(TypeTransfer, flagProcessor("fail"))

	id, _ := e.CreateJob("bad", TypeTransfer, []map[string]any{{"fail": true}, {"fail": true}}, "", nil)
	if err := e.StartJob(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	if job := waitTerminal(t, e, id); job.Status != StatusFailed {
		t.Fatalf("status %s, want %s", job.Status, StatusFailed)
	}
}

func TestEmptyJobCompletesImmediately(t *testing.T) {
	e := NewEngine(nil, utils.NewLogger())
	id, _ := e.CreateJob("empty", TypePayment, nil, "", nil)

	if p, ok := e.GetProgress(id); !ok || p != 100.0 {
		t.Fatalf("progress %v before start, want 100", p)
	}
	if err := e.StartJob(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	if job := waitTerminal(t, e, id); job.Status != StatusCompleted {
		t.Fatalf("status %s, want %s", job.Status, StatusCompleted)
	}
}

func TestProcessorPanicFailsItemNotJob(t *testing.T) {
	e := NewEngine(nil, utils.NewLogger())
	e.RegisterProcessor(TypePayment, func(data map[string]any, _ Type) Result {
		if _, ok := data["boom"]; ok {
			panic("kaput")
		}
		return Result{Success: true}
	})

	id, _ := e.CreateJob("panicky", TypePayment, []map[string]any{{"n": 1}, {"boom": true}, {"n": 3}}, "", nil)
	if err := e.StartJob(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	job := waitTerminal(t, e, id)
	if job.Status != StatusPartiallyCompleted {
		t.Fatalf("status %s, want %s", job.Status, StatusPartiallyCompleted)
	}
	if job.FailedItems != 1 || job.SuccessfulItems != 2 {
		t.Fatalf("counters: %+v", job)
	}
}

func TestStartJobRejectsNonPending(t *testing.T) {
	e := NewEngine(nil, utils.NewLogger())
	e.RegisterProcessor(TypePayment, flagProcessor("fail"))

	id, _ := e.CreateJob("once", TypePayment, []map[string]any{{"n": 1}}, "", nil)
	if err := e.StartJob(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitTerminal(t, e, id)
	if err := e.StartJob(context.Background(), id); !errors.Is(err, ErrJobNotPending) {
		t.Fatalf("expected not-pending error, got %v", err)
	}
	if err := e.StartJob(context.Background(), "no-such-job"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestDeleteJobRejectedWhileProcessing(t *testing.T) {
	e := NewEngine(nil, utils.NewLogger())
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	e.RegisterProcessor(TypePayment, func(map[string]any, Type) Result {
		once.Do(func() { close(started) })
		<-release
		return Result{Success: true}
	})

	id, _ := e.CreateJob("slow", TypePayment, []map[string]any{{"n": 1}}, "", nil)
	if err := e.StartJob(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-started
	if err := e.DeleteJob(id); !errors.Is(err, ErrJobProcessing) {
		t.Fatalf("expected processing error, got %v", err)
	}
	close(release)
	waitTerminal(t, e, id)
	if err := e.DeleteJob(id); err != nil {
		t.Fatalf("delete after finish: %v", err)
	}
	if _, ok := e.GetJob(id); ok {
		t.Fatalf("job still present after delete")
	}
}

func TestCreateJobRejectsUnknownType(t *testing.T) {
	e := NewEngine(nil, utils.NewLogger())
	if _, err := e.CreateJob("x", Type("Lottery"), nil, "", nil); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}

func TestArchiveWrittenOnceAtTerminal(t *testing.T) {
	arch := &captureArchive{}
	e := NewEngine(arch, utils.NewLogger())
	e.RegisterProcessor(TypePayment, flagProcessor("fail"))

	id, _ := e.CreateJob("archived", TypePayment, []map[string]any{{"n": 1}}, "", nil)
	if err := e.StartJob(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitTerminal(t, e, id)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(arch.saved()) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	saved := arch.saved()
	if len(saved) != 1 {
		t.Fatalf("archive saved %d jobs, want 1", len(saved))
	}
	if saved[0].ID != id || saved[0].Status != StatusCompleted {
		t.Fatalf("archived job diverged: %+v", saved[0])
	}
}

func TestListJobsByStatusAndType(t *testing.T) {
	e := NewEngine(nil, utils.NewLogger())
	e.RegisterProcessor(TypePayment, flagProcessor("fail"))

	a, _ := e.CreateJob("a", TypePayment, []map[string]any{{"n": 1}}, "", nil)
	b, _ := e.CreateJob("b", TypeRefund, []map[string]any{{"n": 1}}, "", nil)
	if err := e.StartJob(context.Background(), a); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitTerminal(t, e, a)

	if got := e.ListJobsByStatus(StatusPending); len(got) != 1 || got[0].ID != b {
		t.Fatalf("pending jobs: %v", got)
	}
	if got := e.ListJobsByType(TypePayment); len(got) != 1 || got[0].ID != a {
		t.Fatalf("payment jobs: %v", got)
	}
	if got := e.ListJobs(); len(got) != 2 {
		t.Fatalf("all jobs: %d", len(got))
	}
}

func TestDefaultPaymentProcessorValidation(t *testing.T) {
	res := processPayment(map[string]any{"amount": 10.0, "card_number": "4111111111111111", "expiry": "12/27"}, TypePayment)
	if res.Success || res.Error != "Missing required field: cvv" {
		t.Fatalf("unexpected result: %+v", res)
	}
	res = processPayment(map[string]any{"amount": "0", "card_number": "x", "expiry": "12/27", "cvv": "123"}, TypePayment)
	if res.Success || res.Error != "Invalid amount" {
		t.Fatalf("unexpected result: %+v", res)
	}
}
