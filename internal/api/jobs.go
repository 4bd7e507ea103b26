package api

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusComplete   = "complete"
	JobStatusFailed     = "failed"
)

// UploadJob tracks the progress of one asynchronous upload that the frontend polls.
type UploadJob struct {
	ID        string        `json:"jobId"`
	Name      string        `json:"name"`
	Status    string        `json:"status"`
	Step      string        `json:"step,omitempty"`
	Message   string        `json:"message,omitempty"`
	Current   int           `json:"current"`
	Total     int           `json:"total"`
	Percent   int           `json:"percent"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
	Result    *UploadResult `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
	ErrorKind string        `json:"errorKind,omitempty"`
}

// UploadResult points at the session a finished job created.
type UploadResult struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
	Format    string `json:"format"`
	CardCount int    `json:"cardCount"`
	Generator string `json:"generator"`
}

type JobManager struct {
	mu   sync.RWMutex
	jobs map[string]*UploadJob
	ttl  time.Duration
	now  func() time.Time
}

// NewJobManager keeps finished jobs for ttl before pruning them. A zero ttl keeps them forever.
func NewJobManager(ttl time.Duration) *JobManager {
	return &JobManager{
		jobs: make(map[string]*UploadJob),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (m *JobManager) CreateJob(name string) (string, *UploadJob) {
	now := m.now().UTC()
	job := &UploadJob{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    JobStatusPending,
		Total:     100,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.pruneLocked(now)
	m.jobs[job.ID] = job
	m.mu.Unlock()

	return job.ID, job.clone()
}

func (m *JobManager) GetJob(id string) (*UploadJob, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	return job.clone(), true
}

func (m *JobManager) MarkProcessing(id string) {
	m.withJob(id, func(job *UploadJob) {
		job.Status = JobStatusProcessing
		job.Message = "Starting"
	})
}

func (m *JobManager) UpdateProgress(id string, step, message string, current, total int) {
	m.withJob(id, func(job *UploadJob) {
		job.Status = JobStatusProcessing
		job.Step = step
		job.Message = message
		job.Current = current
		job.Total = total
		job.Percent = percent(current, total)
	})
}

func (m *JobManager) MarkCompleted(id string, result UploadResult) {
	m.withJob(id, func(job *UploadJob) {
		job.Status = JobStatusComplete
		job.Step = "complete"
		job.Message = "Processing complete"
		job.Current = 100
		job.Total = 100
		job.Percent = 100
		job.Result = &result
		job.Error = ""
	})
}

func (m *JobManager) MarkFailed(id, kind, msg string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "processing error"
	}
	m.withJob(id, func(job *UploadJob) {
		job.Status = JobStatusFailed
		job.Step = "error"
		job.Message = msg
		job.Error = msg
		job.ErrorKind = kind
		job.Current = 100
		job.Total = 100
		job.Percent = 100
	})
}

func (m *JobManager) withJob(id string, fn func(job *UploadJob)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return
	}
	fn(job)
	job.UpdatedAt = m.now().UTC()
}

func (m *JobManager) pruneLocked(now time.Time) {
	if m.ttl <= 0 {
		return
	}
	for id, job := range m.jobs {
		if job.finished() && now.Sub(job.UpdatedAt) > m.ttl {
			delete(m.jobs, id)
		}
	}
}

func (job *UploadJob) finished() bool {
	return job.Status == JobStatusComplete || job.Status == JobStatusFailed
}

func (job *UploadJob) clone() *UploadJob {
	if job == nil {
		return nil
	}
	copyJob := *job
	if job.Result != nil {
		res := *job.Result
		copyJob.Result = &res
	}
	return &copyJob
}

func percent(current, total int) int {
	if total <= 0 {
		if current <= 0 {
			return 0
		}
		if current > 100 {
			return 100
		}
		return current
	}
	if current <= 0 {
		return 0
	}
	if current >= total {
		return 100
	}
	return int((float64(current) / float64(total)) * 100)
}
