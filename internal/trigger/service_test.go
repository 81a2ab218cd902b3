package trigger

import (
	"context"
	"sync"
	"testing"

	"github.com/devpulse/sentiment-api/internal/models"
	"github.com/devpulse/sentiment-api/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJobs struct {
	repository.JobRepository
	mu        sync.Mutex
	jobs      map[string]models.ReanalysisJob
	conflict  bool
	cancelled []string
}

func newStubJobs() *stubJobs {
	return &stubJobs{jobs: make(map[string]models.ReanalysisJob)}
}

func (s *stubJobs) Create(ctx context.Context, job models.ReanalysisJob) (models.ReanalysisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflict {
		return job, repository.ErrJobConflict
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	s.jobs[job.ID] = job
	return job, nil
}

func (s *stubJobs) Get(ctx context.Context, id string) (models.ReanalysisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.ReanalysisJob{}, repository.ErrJobNotFound
	}
	return job, nil
}

func (s *stubJobs) RequestCancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return repository.ErrJobNotFound
	}
	s.cancelled = append(s.cancelled, id)
	return nil
}

func (s *stubJobs) created() []models.ReanalysisJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	var jobs []models.ReanalysisJob
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

type stubTools struct {
	repository.ToolRepository
	known map[string]bool
}

func (s *stubTools) MissingToolIDs(ctx context.Context, ids []string) ([]string, error) {
	var missing []string
	for _, id := range ids {
		if !s.known[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

type stubRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *stubRecorder) note(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *stubRecorder) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *stubRecorder) JobCreated(ctx context.Context, job models.ReanalysisJob) error {
	r.note("job_created")
	return nil
}

func (r *stubRecorder) JobCompleted(ctx context.Context, job models.ReanalysisJob) error {
	r.note("job_completed")
	return nil
}

func (r *stubRecorder) JobFailed(ctx context.Context, job models.ReanalysisJob, reason string) error {
	r.note("job_failed")
	return nil
}

func (r *stubRecorder) JobCancelled(ctx context.Context, job models.ReanalysisJob) error {
	r.note("job_cancelled")
	return nil
}

func (r *stubRecorder) TriggerSkipped(ctx context.Context, eventType, reason string) error {
	r.note("trigger_skipped")
	return nil
}

func (r *stubRecorder) ListRecent(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	return nil, nil
}

func newTestService(jobs *stubJobs, recorder *stubRecorder) *Service {
	tools := &stubTools{known: map[string]bool{"t1": true, "t2": true, "t3": true}}
	return NewService(jobs, tools, recorder, zerolog.Nop())
}

func TestCreateJobDefaults(t *testing.T) {
	jobs := newStubJobs()
	recorder := &stubRecorder{}
	service := newTestService(jobs, recorder)

	job, err := service.CreateJob(context.Background(), CreateRequest{})
	require.NoError(t, err)

	assert.Equal(t, models.JobTypeReanalysis, job.Type)
	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Equal(t, models.TriggerManual, job.TriggerType)
	assert.Equal(t, models.SystemActor, job.TriggeredBy)
	assert.Equal(t, models.DefaultBatchSize, job.Parameters.BatchSize)
	assert.Contains(t, recorder.recorded(), "job_created")
}

func TestCreateJobRejectsBadBatchSize(t *testing.T) {
	service := newTestService(newStubJobs(), &stubRecorder{})

	_, err := service.CreateJob(context.Background(), CreateRequest{
		Parameters: models.JobParameters{BatchSize: models.MaxBatchSize + 1},
	})
	require.Error(t, err)
	assert.True(t, models.IsValidationError(err))
}

func TestCreateJobRejectsUnknownTools(t *testing.T) {
	service := newTestService(newStubJobs(), &stubRecorder{})

	_, err := service.CreateJob(context.Background(), CreateRequest{
		Parameters: models.JobParameters{ToolIDs: []string{"t1", "ghost"}},
	})
	require.Error(t, err)
	assert.True(t, models.IsValidationError(err))
	assert.Contains(t, err.Error(), "ghost")
}

func TestCreateJobRejectsMergeWithoutTarget(t *testing.T) {
	service := newTestService(newStubJobs(), &stubRecorder{})

	_, err := service.CreateJob(context.Background(), CreateRequest{
		Type:       models.JobTypeMergeUpdate,
		Parameters: models.JobParameters{SourceToolIDs: []string{"t2"}},
	})
	require.Error(t, err)
	assert.True(t, models.IsValidationError(err))
}

func TestCreateJobRejectsMergeParamsOnReanalysis(t *testing.T) {
	service := newTestService(newStubJobs(), &stubRecorder{})

	_, err := service.CreateJob(context.Background(), CreateRequest{
		Type:       models.JobTypeReanalysis,
		Parameters: models.JobParameters{SourceToolIDs: []string{"t2"}, TargetToolID: "t1"},
	})
	require.Error(t, err)
	assert.True(t, models.IsValidationError(err))
}

func TestCreateJobConflictPassthrough(t *testing.T) {
	jobs := newStubJobs()
	jobs.conflict = true
	recorder := &stubRecorder{}
	service := newTestService(jobs, recorder)

	_, err := service.CreateJob(context.Background(), CreateRequest{})
	require.ErrorIs(t, err, repository.ErrJobConflict)
	assert.NotContains(t, recorder.recorded(), "job_created")
}

func TestCreateJobResumeCopiesCheckpoint(t *testing.T) {
	jobs := newStubJobs()
	jobs.jobs["prior"] = models.ReanalysisJob{
		ID:                   "prior",
		Status:               models.JobStatusFailed,
		LastCheckpointCursor: 4200,
	}
	service := newTestService(jobs, &stubRecorder{})

	job, err := service.CreateJob(context.Background(), CreateRequest{
		Parameters: models.JobParameters{ResumeFromJobID: "prior"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4200), job.LastCheckpointCursor)
}

func TestCreateJobResumeUnknownJob(t *testing.T) {
	service := newTestService(newStubJobs(), &stubRecorder{})

	_, err := service.CreateJob(context.Background(), CreateRequest{
		Parameters: models.JobParameters{ResumeFromJobID: "missing"},
	})
	require.Error(t, err)
	assert.True(t, models.IsValidationError(err))
}

func TestCancelJobDelegates(t *testing.T) {
	jobs := newStubJobs()
	jobs.jobs["job-1"] = models.ReanalysisJob{ID: "job-1", Status: models.JobStatusRunning}
	service := newTestService(jobs, &stubRecorder{})

	require.NoError(t, service.CancelJob(context.Background(), "job-1", "tester"))
	assert.Equal(t, []string{"job-1"}, jobs.cancelled)

	err := service.CancelJob(context.Background(), "missing", "tester")
	assert.ErrorIs(t, err, repository.ErrJobNotFound)
}
