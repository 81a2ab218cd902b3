package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devpulse/sentiment-api/internal/models"
	"github.com/devpulse/sentiment-api/internal/repository"
)

type fakeJobStore struct {
	mu            sync.Mutex
	jobs          map[string]*models.ReanalysisJob
	progressCalls int
}

func newFakeJobStore(jobs ...models.ReanalysisJob) *fakeJobStore {
	store := &fakeJobStore{jobs: make(map[string]*models.ReanalysisJob)}
	for i := range jobs {
		job := jobs[i]
		store.jobs[job.ID] = &job
	}
	return store
}

func (s *fakeJobStore) Create(ctx context.Context, job models.ReanalysisJob) (models.ReanalysisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.jobs {
		if existing.Status.IsActive() {
			return job, repository.ErrJobConflict
		}
	}
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}
	s.jobs[job.ID] = &job
	return job, nil
}

func (s *fakeJobStore) Get(ctx context.Context, id string) (models.ReanalysisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.ReanalysisJob{}, repository.ErrJobNotFound
	}
	return *job, nil
}

func (s *fakeJobStore) List(ctx context.Context, status models.JobStatus, trigger models.TriggerType, limit, offset int) ([]models.ReanalysisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var jobs []models.ReanalysisJob
	for _, job := range s.jobs {
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

func (s *fakeJobStore) ClaimNextQueued(ctx context.Context) (models.ReanalysisJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.Status == models.JobStatusQueued {
			job.Status = models.JobStatusRunning
			now := time.Now()
			job.StartTime = &now
			return *job, true, nil
		}
	}
	return models.ReanalysisJob{}, false, nil
}

func (s *fakeJobStore) FindRunning(ctx context.Context) (models.ReanalysisJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.Status == models.JobStatusRunning {
			return *job, true, nil
		}
	}
	return models.ReanalysisJob{}, false, nil
}

func (s *fakeJobStore) TransitionStatus(ctx context.Context, id string, from, to models.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return repository.ErrJobNotFound
	}
	if !from.CanTransitionTo(to) || job.Status != from {
		return fmt.Errorf("%w: %s -> %s (current %s)", repository.ErrInvalidTransition, from, to, job.Status)
	}
	job.Status = to
	now := time.Now()
	if to == models.JobStatusRunning {
		job.StartTime = &now
	}
	if to.IsTerminal() {
		job.EndTime = &now
	}
	return nil
}

func (s *fakeJobStore) SetTotalCount(ctx context.Context, id string, total int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.TotalCount = total
	}
	return nil
}

func (s *fakeJobStore) UpdateProgress(ctx context.Context, id string, processed, cursor int64, stats models.JobStatistics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return repository.ErrJobNotFound
	}
	if job.Status != models.JobStatusRunning || job.ProcessedCount > processed {
		return nil
	}
	s.progressCalls++
	job.ProcessedCount = processed
	job.LastCheckpointCursor = cursor
	job.Statistics = stats
	return nil
}

func (s *fakeJobStore) AppendErrors(ctx context.Context, id string, errs []models.JobError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.ErrorLog = append(job.ErrorLog, errs...)
	}
	return nil
}

func (s *fakeJobStore) RequestCancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return repository.ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		return repository.ErrInvalidTransition
	}
	job.CancelRequested = true
	return nil
}

func (s *fakeJobStore) CancelRequested(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false, repository.ErrJobNotFound
	}
	return job.CancelRequested, nil
}

func (s *fakeJobStore) SetFailureReason(ctx context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.FailureReason = &reason
	}
	return nil
}

type fakeContentStore struct {
	mu      sync.Mutex
	records []models.ContentRecord
	writes  map[int64]int
	failIDs map[int64]bool
	scanErr error
}

func newFakeContentStore(records ...models.ContentRecord) *fakeContentStore {
	return &fakeContentStore{
		records: records,
		writes:  make(map[int64]int),
		failIDs: make(map[int64]bool),
	}
}

func (s *fakeContentStore) Count(ctx context.Context, filter models.ContentFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, rec := range s.records {
		if filter.Matches(rec) {
			count++
		}
	}
	return count, nil
}

func (s *fakeContentStore) ListBatch(ctx context.Context, filter models.ContentFilter, afterID int64, limit int) ([]models.ContentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanErr != nil {
		return nil, s.scanErr
	}
	var batch []models.ContentRecord
	for _, rec := range s.records {
		if rec.ID > afterID && filter.Matches(rec) {
			batch = append(batch, rec)
			if len(batch) == limit {
				break
			}
		}
	}
	return batch, nil
}

func (s *fakeContentStore) UpdateAssociations(ctx context.Context, id int64, toolIDs []string, analyzedAt time.Time, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failIDs[id] {
		return fmt.Errorf("write failed for record %d", id)
	}
	for i := range s.records {
		if s.records[i].ID == id {
			s.writes[id]++
			s.records[i].DetectedToolIDs = toolIDs
			s.records[i].LastAnalyzedAt = &analyzedAt
			s.records[i].AnalysisVersion = version
			return nil
		}
	}
	return fmt.Errorf("content record %d not found", id)
}

func (s *fakeContentStore) CountMergeCandidates(ctx context.Context, sourceToolIDs []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, rec := range s.records {
		if overlaps(rec.DetectedToolIDs, sourceToolIDs) {
			count++
		}
	}
	return count, nil
}

func (s *fakeContentStore) ListMergeCandidates(ctx context.Context, sourceToolIDs []string, afterID int64, limit int) ([]models.ContentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanErr != nil {
		return nil, s.scanErr
	}
	var batch []models.ContentRecord
	for _, rec := range s.records {
		if rec.ID > afterID && overlaps(rec.DetectedToolIDs, sourceToolIDs) {
			batch = append(batch, rec)
			if len(batch) == limit {
				break
			}
		}
	}
	return batch, nil
}

func (s *fakeContentStore) record(id int64) models.ContentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.ID == id {
			return rec
		}
	}
	return models.ContentRecord{}
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

type fakeToolStore struct {
	tools   []models.Tool
	aliases []models.ToolAlias
}

func (s *fakeToolStore) Get(ctx context.Context, id string) (models.Tool, error) {
	for _, tool := range s.tools {
		if tool.ID == id {
			return tool, nil
		}
	}
	return models.Tool{}, repository.ErrToolNotFound
}

func (s *fakeToolStore) ListActive(ctx context.Context) ([]models.Tool, error) {
	var active []models.Tool
	for _, tool := range s.tools {
		if tool.Status != models.ToolStatusArchived {
			active = append(active, tool)
		}
	}
	return active, nil
}

func (s *fakeToolStore) ListAliases(ctx context.Context) ([]models.ToolAlias, error) {
	return s.aliases, nil
}

func (s *fakeToolStore) MissingToolIDs(ctx context.Context, ids []string) ([]string, error) {
	var missing []string
	for _, id := range ids {
		found := false
		for _, tool := range s.tools {
			if tool.ID == id {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *fakeRecorder) note(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *fakeRecorder) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *fakeRecorder) JobCreated(ctx context.Context, job models.ReanalysisJob) error {
	r.note("job_created")
	return nil
}

func (r *fakeRecorder) JobCompleted(ctx context.Context, job models.ReanalysisJob) error {
	r.note("job_completed")
	return nil
}

func (r *fakeRecorder) JobFailed(ctx context.Context, job models.ReanalysisJob, reason string) error {
	r.note("job_failed")
	return nil
}

func (r *fakeRecorder) JobCancelled(ctx context.Context, job models.ReanalysisJob) error {
	r.note("job_cancelled")
	return nil
}

func (r *fakeRecorder) TriggerSkipped(ctx context.Context, eventType, reason string) error {
	r.note("trigger_skipped")
	return nil
}

func (r *fakeRecorder) ListRecent(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	return nil, nil
}
