package worker

import (
	"context"
	"testing"

	"github.com/devpulse/sentiment-api/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerResumesInterruptedJob(t *testing.T) {
	content := newFakeContentStore(generateRecords(250, "hammer")...)

	// A previous process died mid-run; the job row is still running with
	// a persisted checkpoint.
	job := runningJob("job-1", models.JobParameters{BatchSize: 100})
	job.ProcessedCount = 100
	job.LastCheckpointCursor = 100
	jobs := newFakeJobStore(job)

	proc := NewProcessor(jobs, content, testTools(), nil, &fakeRecorder{}, testConfig(), zerolog.Nop())
	w := New(jobs, proc, testConfig().WriteRetryBase, zerolog.Nop())

	require.NoError(t, w.resumeInterrupted(context.Background()))

	final, err := jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	assert.Equal(t, int64(250), final.ProcessedCount)
	for id := int64(1); id <= 100; id++ {
		assert.Zero(t, content.writes[id])
	}
}

func TestWorkerClaimsQueuedJob(t *testing.T) {
	content := newFakeContentStore(generateRecords(10, "hammer")...)
	job := models.ReanalysisJob{
		ID:         "job-1",
		Type:       models.JobTypeReanalysis,
		Status:     models.JobStatusQueued,
		Parameters: models.JobParameters{BatchSize: 10},
	}
	jobs := newFakeJobStore(job)

	proc := NewProcessor(jobs, content, testTools(), nil, &fakeRecorder{}, testConfig(), zerolog.Nop())
	w := New(jobs, proc, testConfig().WriteRetryBase, zerolog.Nop())

	require.NoError(t, w.runNext(context.Background()))

	final, err := jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	assert.Equal(t, int64(10), final.ProcessedCount)
}

func TestWorkerNoQueuedJobIsNoop(t *testing.T) {
	jobs := newFakeJobStore()
	proc := NewProcessor(jobs, newFakeContentStore(), testTools(), nil, &fakeRecorder{}, testConfig(), zerolog.Nop())
	w := New(jobs, proc, testConfig().WriteRetryBase, zerolog.Nop())

	require.NoError(t, w.runNext(context.Background()))
	require.NoError(t, w.resumeInterrupted(context.Background()))
}
