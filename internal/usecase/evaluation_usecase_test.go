package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fadilmartias/cv-screening/internal/breaker"
	"github.com/fadilmartias/cv-screening/internal/config"
	"github.com/fadilmartias/cv-screening/internal/model"
	"github.com/fadilmartias/cv-screening/internal/queue"
	"github.com/fadilmartias/cv-screening/internal/repository"
	"github.com/fadilmartias/cv-screening/internal/service"
	"github.com/fadilmartias/cv-screening/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRepo struct {
	mu             sync.Mutex
	records        map[string]model.EvaluationRequest
	conflictOnNext bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[string]model.EvaluationRequest)}
}

func (r *fakeRepo) Create(req *model.EvaluationRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[req.ID.String()] = *req
	return nil
}

func (r *fakeRepo) FindByID(id string) (*model.EvaluationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := rec
	return &out, nil
}

func (r *fakeRepo) UpdateWithVersion(req *model.EvaluationRequest, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflictOnNext {
		r.conflictOnNext = false
		return repository.ErrVersionConflict
	}
	stored, ok := r.records[req.ID.String()]
	if !ok || stored.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	req.Version = expectedVersion + 1
	r.records[req.ID.String()] = *req
	return nil
}

type fakeStore struct {
	docs map[string][]byte
}

func (s *fakeStore) Fetch(_ context.Context, ref string) ([]byte, error) {
	data, ok := s.docs[ref]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

type fakeExtractor struct{}

func (fakeExtractor) Extract(data []byte) (string, error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return "", fmt.Errorf("missing PDF header: %w", errUnreadable)
	}
	return string(data), nil
}

var errUnreadable = errors.New("unreadable document")

type stubAIClient struct {
	mu      sync.Mutex
	calls   int
	outcome func(call int) (*service.EvaluationResult, error)
}

func (s *stubAIClient) Evaluate(_ context.Context, _, _ string) (*service.EvaluationResult, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()
	return s.outcome(call)
}

func (s *stubAIClient) Key() string { return "stub/test-model" }

func (s *stubAIClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func successResult() *service.EvaluationResult {
	return &service.EvaluationResult{
		Score:     76.5,
		Rationale: "solid backend experience",
		Matches:   []string{"Go", "PostgreSQL"},
		Gaps:      []string{"Kubernetes"},
	}
}

type testEnv struct {
	uc       *EvaluationUsecase
	repo     *fakeRepo
	store    *fakeStore
	ai       *stubAIClient
	queue    *queue.MemoryQueue
	breakers *breaker.Registry
}

func newTestEnv(outcome func(call int) (*service.EvaluationResult, error)) *testEnv {
	repo := newFakeRepo()
	store := &fakeStore{docs: map[string][]byte{
		"cv.pdf": []byte("%PDF-extracted cv text"),
	}}
	ai := &stubAIClient{outcome: outcome}
	q := queue.NewMemoryQueue(16)
	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		OpenDuration:     time.Minute,
	})
	cfg := &config.PipelineConfig{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	}
	uc := NewEvaluationUsecase(repo, store, fakeExtractor{}, ai, q, breakers, cfg, zap.NewNop())
	return &testEnv{uc: uc, repo: repo, store: store, ai: ai, queue: q, breakers: breakers}
}

func (e *testEnv) submit(t *testing.T) string {
	t.Helper()
	id, err := e.uc.Submit(context.Background(), "backend engineer", "cv.pdf", "user-1")
	require.NoError(t, err)
	return id
}

func TestSubmitUnreadableDocumentCreatesNoJob(t *testing.T) {
	env := newTestEnv(func(int) (*service.EvaluationResult, error) {
		t.Fatal("AI client must not be called")
		return nil, nil
	})
	env.store.docs["broken.pdf"] = []byte("not a pdf at all")

	_, err := env.uc.Submit(context.Background(), "prompt", "broken.pdf", "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, errUnreadable)

	assert.Empty(t, env.repo.records)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, dqErr := env.queue.Dequeue(ctx)
	assert.Error(t, dqErr, "nothing should have been enqueued")
}

func TestSubmitCreatesPendingRecordAndEnqueues(t *testing.T) {
	env := newTestEnv(func(int) (*service.EvaluationResult, error) { return successResult(), nil })
	id := env.submit(t)

	rec, err := env.repo.FindByID(id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, rec.Status)
	assert.Equal(t, "backend engineer", rec.Prompt)
	assert.Equal(t, "%PDF-extracted cv text", rec.CVText)
	assert.Nil(t, rec.Score)

	jobID, err := env.queue.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id, jobID)
}

func TestProcessCompletesJob(t *testing.T) {
	env := newTestEnv(func(int) (*service.EvaluationResult, error) { return successResult(), nil })
	id := env.submit(t)

	require.NoError(t, env.uc.Process(context.Background(), id))

	rec, err := env.repo.FindByID(id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, rec.Status)
	require.NotNil(t, rec.Score)
	assert.Equal(t, 76.5, *rec.Score)
	assert.Equal(t, "solid backend experience", rec.Rationale)
	assert.JSONEq(t, `["Go","PostgreSQL"]`, rec.Matches)
	assert.JSONEq(t, `["Kubernetes"]`, rec.Gaps)
	assert.Empty(t, rec.ErrorDetail)
	assert.Equal(t, 1, env.ai.callCount())
}

func TestProcessIsIdempotentForTerminalJobs(t *testing.T) {
	env := newTestEnv(func(int) (*service.EvaluationResult, error) { return successResult(), nil })
	id := env.submit(t)
	require.NoError(t, env.uc.Process(context.Background(), id))
	before, _ := env.repo.FindByID(id)

	// Re-delivery of the completed job.
	require.NoError(t, env.uc.Process(context.Background(), id))

	after, _ := env.repo.FindByID(id)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, env.ai.callCount(), "terminal jobs must not be reprocessed")
}

func TestProcessUnknownJobIsAcked(t *testing.T) {
	env := newTestEnv(func(int) (*service.EvaluationResult, error) { return successResult(), nil })
	assert.NoError(t, env.uc.Process(context.Background(), "3b8e7c1e-0000-0000-0000-000000000000"))
}

func TestProcessNonRetriableFailsImmediately(t *testing.T) {
	env := newTestEnv(func(int) (*service.EvaluationResult, error) {
		return nil, &service.Error{Kind: service.KindUpstreamRejected, Message: "input rejected"}
	})
	id := env.submit(t)

	require.NoError(t, env.uc.Process(context.Background(), id))

	rec, _ := env.repo.FindByID(id)
	assert.Equal(t, model.StatusFailed, rec.Status)
	assert.Contains(t, rec.ErrorDetail, "input rejected")
	assert.Nil(t, rec.Score)
	assert.Equal(t, 1, env.ai.callCount(), "permanent failures must not retry")
}

func TestProcessInvalidResponseFailsImmediately(t *testing.T) {
	env := newTestEnv(func(int) (*service.EvaluationResult, error) {
		return nil, &service.Error{Kind: service.KindInvalidResponse, Message: "score missing"}
	})
	id := env.submit(t)

	require.NoError(t, env.uc.Process(context.Background(), id))

	rec, _ := env.repo.FindByID(id)
	assert.Equal(t, model.StatusFailed, rec.Status)
	assert.Equal(t, 1, env.ai.callCount())
}

func TestProcessRetriesTransientThenSucceeds(t *testing.T) {
	env := newTestEnv(func(call int) (*service.EvaluationResult, error) {
		if call < 3 {
			return nil, &service.Error{Kind: service.KindTimeout, Message: "request timed out"}
		}
		return successResult(), nil
	})
	id := env.submit(t)

	require.NoError(t, env.uc.Process(context.Background(), id))

	rec, _ := env.repo.FindByID(id)
	assert.Equal(t, model.StatusCompleted, rec.Status)
	assert.Equal(t, 3, env.ai.callCount())
}

func TestProcessExhaustsRetriesThenFails(t *testing.T) {
	env := newTestEnv(func(int) (*service.EvaluationResult, error) {
		return nil, &service.Error{Kind: service.KindTimeout, Message: "request timed out"}
	})
	id := env.submit(t)

	require.NoError(t, env.uc.Process(context.Background(), id))

	rec, _ := env.repo.FindByID(id)
	assert.Equal(t, model.StatusFailed, rec.Status)
	assert.Contains(t, rec.ErrorDetail, "max retries")
	// Initial attempt plus MaxRetries re-attempts.
	assert.Equal(t, 4, env.ai.callCount())
}

func TestProcessFastFailsWhenBreakerOpens(t *testing.T) {
	env := newTestEnv(func(int) (*service.EvaluationResult, error) {
		return nil, &service.Error{Kind: service.KindTimeout, Message: "request timed out"}
	})
	id := env.submit(t)

	// Breaker trips after the first attempt; the orchestrator must not wait
	// out the remaining backoff windows.
	br := env.breakers.Get(env.ai.Key())
	br.Failure()
	br.Failure()
	br.Failure()
	require.Equal(t, breaker.StateOpen, br.State())

	require.NoError(t, env.uc.Process(context.Background(), id))

	rec, _ := env.repo.FindByID(id)
	assert.Equal(t, model.StatusFailed, rec.Status)
	assert.Contains(t, rec.ErrorDetail, "circuit breaker open")
	assert.Equal(t, 1, env.ai.callCount())
}

func TestProcessBreakerShortCircuitFailsWithoutRetry(t *testing.T) {
	env := newTestEnv(func(int) (*service.EvaluationResult, error) {
		return nil, &service.Error{
			Kind:    service.KindServiceUnavailable,
			Message: "circuit breaker rejected call",
			Err:     breaker.ErrOpen,
		}
	})
	id := env.submit(t)

	require.NoError(t, env.uc.Process(context.Background(), id))

	rec, _ := env.repo.FindByID(id)
	assert.Equal(t, model.StatusFailed, rec.Status)
	assert.Equal(t, 1, env.ai.callCount())
}

func TestProcessTerminalWriteConflictIsAbandoned(t *testing.T) {
	env := newTestEnv(func(int) (*service.EvaluationResult, error) { return successResult(), nil })
	id := env.submit(t)

	// Claim the job, then force the terminal write to lose the version race.
	rec, _ := env.repo.FindByID(id)
	rec.Status = model.StatusProcessing
	require.NoError(t, env.repo.UpdateWithVersion(rec, rec.Version))
	env.repo.mu.Lock()
	env.repo.conflictOnNext = true
	env.repo.mu.Unlock()

	// Abandoning the stale write is not an error; the delivery is acked.
	assert.NoError(t, env.uc.Process(context.Background(), id))
}

func TestProcessClaimRaceLosesGracefully(t *testing.T) {
	env := newTestEnv(func(int) (*service.EvaluationResult, error) { return successResult(), nil })
	id := env.submit(t)

	env.repo.mu.Lock()
	env.repo.conflictOnNext = true
	env.repo.mu.Unlock()

	// The pending->processing claim conflicts; another worker owns the job.
	require.NoError(t, env.uc.Process(context.Background(), id))
	assert.Equal(t, 0, env.ai.callCount())
}

func TestResultPresenceMatchesStatus(t *testing.T) {
	completedEnv := newTestEnv(func(int) (*service.EvaluationResult, error) { return successResult(), nil })
	completedID := completedEnv.submit(t)
	require.NoError(t, completedEnv.uc.Process(context.Background(), completedID))

	failedEnv := newTestEnv(func(int) (*service.EvaluationResult, error) {
		return nil, &service.Error{Kind: service.KindUpstreamRejected, Message: "rejected"}
	})
	failedID := failedEnv.submit(t)
	require.NoError(t, failedEnv.uc.Process(context.Background(), failedID))

	completed, _ := completedEnv.repo.FindByID(completedID)
	assert.NotNil(t, completed.Score)
	assert.Empty(t, completed.ErrorDetail)

	failed, _ := failedEnv.repo.FindByID(failedID)
	assert.Nil(t, failed.Score)
	assert.NotEmpty(t, failed.ErrorDetail)
}
