package batch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"fintechx-ops/core/utils"
)

// ArchiveSink receives a job exactly once, at the moment it reaches a
// terminal status.
type ArchiveSink interface {
	Save(ctx context.Context, job *Job) error
}

// Engine owns the job table and the per-type processor registry. Jobs run
// one goroutine each; all job state is mutated under the engine lock so
// queries observe consistent counters mid-run.
type Engine struct {
	archive ArchiveSink
	logger  *utils.Logger
	now     func() time.Time

	mu         sync.RWMutex
	jobs       map[string]*Job
	processors map[Type]ProcessorFunc
	running    int
}

func NewEngine(archive ArchiveSink, logger *utils.Logger) *Engine {
	e := &Engine{
		archive:    archive,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		jobs:       map[string]*Job{},
		processors: map[Type]ProcessorFunc{},
	}
	registerDefaultProcessors(e)
	return e
}

func newID() string {
	return uuid.Must(uuid.NewV4()).String()
}

// RegisterProcessor binds a processor to a batch type. Last registration
// wins.
func (e *Engine) RegisterProcessor(t Type, fn ProcessorFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.processors[t] = fn
}

func (e *Engine) CreateJob(name string, t Type, items []map[string]any, description string, metadata map[string]any) (string, error) {
	if _, err := ParseType(string(t)); err != nil {
		return "", err
	}
	now := e.now()
	job := &Job{
		ID:          newID(),
		Name:        name,
		Type:        t,
		Description: description,
		Metadata:    metadata,
		Status:      StatusPending,
		TotalItems:  len(items),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	job.Items = make([]*Item, 0, len(items))
	for _, data := range items {
		job.Items = append(job.Items, &Item{
			ID:     newID(),
			Data:   data,
			Status: ItemPending,
		})
	}

	e.mu.Lock()
	e.jobs[job.ID] = job
	e.mu.Unlock()

	e.logger.Printf("created batch job %s: %s (%s), %d items", job.ID, name, t, len(items))
	return job.ID, nil
}

// StartJob moves a pending job to Processing and runs it on its own
// goroutine. Starting a job that is not pending, or whose type has no
// processor, is rejected.
func (e *Engine) StartJob(ctx context.Context, jobID string) error {
	e.mu.Lock()
	job, ok := e.jobs[jobID]
	if !ok {
		e.mu.Unlock()
		return ErrJobNotFound
	}
	if job.Status != StatusPending {
		e.mu.Unlock()
		return ErrJobNotPending
	}
	fn, ok := e.processors[job.Type]
	if !ok {
		now := e.now()
		job.Status = StatusFailed
		job.UpdatedAt = now
		job.CompletedAt = &now
		e.mu.Unlock()
		e.logger.Errorf("no processor registered for batch type %s", job.Type)
		e.archiveJob(ctx, jobID)
		return ErrNoProcessor
	}
	now := e.now()
	job.Status = StatusProcessing
	job.StartedAt = &now
	job.UpdatedAt = now
	e.running++
	e.mu.Unlock()

	go e.run(ctx, jobID, fn)
	e.logger.Printf("started batch job %s", jobID)
	return nil
}

func (e *Engine) run(ctx context.Context, jobID string, fn ProcessorFunc) {
	defer func() {
		e.mu.Lock()
		e.running--
		e.mu.Unlock()
	}()

	for i := 0; ; i++ {
		e.mu.RLock()
		job, ok := e.jobs[jobID]
		if !ok || i >= len(job.Items) {
			e.mu.RUnlock()
			break
		}
		batchType := job.Type
		data := job.Items[i].Data
		e.mu.RUnlock()

		res := e.processItem(jobID, batchType, data, fn)

		e.mu.Lock()
		job, ok = e.jobs[jobID]
		if !ok {
			e.mu.Unlock()
			return
		}
		item := job.Items[i]
		now := e.now()
		if res.Success {
			item.Status = ItemCompleted
			for k, v := range res.Output {
				if item.Data == nil {
					item.Data = map[string]any{}
				}
				item.Data[k] = v
			}
			job.SuccessfulItems++
		} else {
			item.Status = ItemFailed
			item.ErrorMessage = res.Error
			job.FailedItems++
		}
		item.ProcessedAt = &now
		job.ProcessedItems++
		job.UpdatedAt = now
		e.mu.Unlock()
	}

	e.finishJob(ctx, jobID)
}

// processItem shields the engine from a panicking processor: the item
// fails, the rest of the batch continues.
func (e *Engine) processItem(jobID string, t Type, data map[string]any, fn ProcessorFunc) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorf("processor panic in job %s: %v", jobID, r)
			res = Result{Success: false, Error: "processor panic"}
		}
	}()
	return fn(data, t)
}

func (e *Engine) finishJob(ctx context.Context, jobID string) {
	e.mu.Lock()
	job, ok := e.jobs[jobID]
	if !ok {
		e.mu.Unlock()
		return
	}
	switch {
	case job.FailedItems == 0:
		job.Status = StatusCompleted
	case job.SuccessfulItems == 0:
		job.Status = StatusFailed
	default:
		job.Status = StatusPartiallyCompleted
	}
	now := e.now()
	job.CompletedAt = &now
	job.UpdatedAt = now
	status := job.Status
	e.mu.Unlock()

	e.logger.Printf("batch job %s finished: %s", jobID, status)
	e.archiveJob(ctx, jobID)
}

func (e *Engine) archiveJob(ctx context.Context, jobID string) {
	if e.archive == nil {
		return
	}
	job, ok := e.GetJob(jobID)
	if !ok {
		return
	}
	if err := e.archive.Save(ctx, job); err != nil {
		e.logger.Errorf("archive batch job %s: %v", jobID, err)
	}
}

func (e *Engine) GetJob(jobID string) (*Job, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	job, ok := e.jobs[jobID]
	if !ok {
		return nil, false
	}
	return cloneJob(job), true
}

func (e *Engine) ListJobs() []*Job {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Job, 0, len(e.jobs))
	for _, job := range e.jobs {
		out = append(out, cloneJob(job))
	}
	sortJobs(out)
	return out
}

func (e *Engine) ListJobsByStatus(status Status) []*Job {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*Job
	for _, job := range e.jobs {
		if job.Status == status {
			out = append(out, cloneJob(job))
		}
	}
	sortJobs(out)
	return out
}

func (e *Engine) ListJobsByType(t Type) []*Job {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*Job
	for _, job := range e.jobs {
		if job.Type == t {
			out = append(out, cloneJob(job))
		}
	}
	sortJobs(out)
	return out
}

func (e *Engine) GetProgress(jobID string) (float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	job, ok := e.jobs[jobID]
	if !ok {
		return 0, false
	}
	return job.Progress(), true
}

// DeleteJob removes a job from the table. A job that is currently
// processing cannot be deleted.
func (e *Engine) DeleteJob(jobID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status == StatusProcessing {
		return ErrJobProcessing
	}
	delete(e.jobs, jobID)
	e.logger.Printf("deleted batch job %s", jobID)
	return nil
}

type Stats struct {
	Jobs     int
	Running  int
	ByStatus map[Status]int
}

func (e *Engine) CurrentStats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st := Stats{Jobs: len(e.jobs), Running: e.running, ByStatus: map[Status]int{}}
	for _, job := range e.jobs {
		st.ByStatus[job.Status]++
	}
	return st
}

func sortJobs(jobs []*Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
}

func cloneJob(job *Job) *Job {
	out := *job
	out.Metadata = cloneMap(job.Metadata)
	out.Items = make([]*Item, 0, len(job.Items))
	for _, item := range job.Items {
		ci := *item
		ci.Data = cloneMap(item.Data)
		if item.ProcessedAt != nil {
			t := *item.ProcessedAt
			ci.ProcessedAt = &t
		}
		out.Items = append(out.Items, &ci)
	}
	if job.StartedAt != nil {
		t := *job.StartedAt
		out.StartedAt = &t
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
