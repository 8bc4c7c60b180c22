package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmis-platform/queue-api/internal/models"
)

type fakeDispatchRepo struct {
	due      []models.QueuedPost
	statuses map[string]string
	records  []*models.PublishRecord
}

func (f *fakeDispatchRepo) ListDue(context.Context, time.Time, int) ([]models.QueuedPost, error) {
	return f.due, nil
}

func (f *fakeDispatchRepo) ClaimForDispatch(_ context.Context, id string) (bool, error) {
	if f.statuses == nil {
		f.statuses = map[string]string{}
	}
	if status, ok := f.statuses[id]; ok && status != models.QueuedPostStatusQueued {
		return false, nil
	}
	f.statuses[id] = models.QueuedPostStatusDispatching
	return true, nil
}

func (f *fakeDispatchRepo) UpdateStatus(_ context.Context, id, status string) error {
	if f.statuses == nil {
		f.statuses = map[string]string{}
	}
	f.statuses[id] = status
	return nil
}

func (f *fakeDispatchRepo) InsertPublishRecord(_ context.Context, record *models.PublishRecord) error {
	f.records = append(f.records, record)
	return nil
}

type fakeDispatchAccounts struct {
	account *models.SocialAccount
}

func (f *fakeDispatchAccounts) FindByID(context.Context, string, string) (*models.SocialAccount, error) {
	return f.account, nil
}

func duePost() models.QueuedPost {
	return models.QueuedPost{
		ID:              "qp-1",
		OrgID:           "org-1",
		PostID:          "post-1",
		SocialAccountID: "acc-1",
		ScheduledFor:    time.Now().UTC().Add(-time.Minute),
		Status:          models.QueuedPostStatusQueued,
	}
}

func TestPublisherDispatchPublishes(t *testing.T) {
	repo := &fakeDispatchRepo{}
	accounts := &fakeDispatchAccounts{account: &models.SocialAccount{ID: "acc-1", Status: models.SocialAccountConnected}}
	svc := NewPublisherService(repo, accounts, nil, nil, time.Second, 1, 1)

	err := svc.Dispatch(context.Background(), duePost())

	require.NoError(t, err)
	assert.Equal(t, models.QueuedPostStatusPublished, repo.statuses["qp-1"])
	require.Len(t, repo.records, 1)
	assert.Equal(t, models.QueuedPostStatusPublished, repo.records[0].Status)
}

// A disconnected channel fails the post instead of publishing it.
func TestPublisherDispatchSkipsDisconnected(t *testing.T) {
	repo := &fakeDispatchRepo{}
	accounts := &fakeDispatchAccounts{account: &models.SocialAccount{ID: "acc-1", Status: models.SocialAccountDisconnected}}
	svc := NewPublisherService(repo, accounts, nil, nil, time.Second, 1, 1)

	err := svc.Dispatch(context.Background(), duePost())

	require.NoError(t, err)
	assert.Equal(t, models.QueuedPostStatusFailed, repo.statuses["qp-1"])
	require.Len(t, repo.records, 1)
	assert.Equal(t, models.QueuedPostStatusFailed, repo.records[0].Status)
	assert.NotEmpty(t, repo.records[0].Detail)
}

// syncDispatchRepo mimics the database state machine for a single post and is
// safe for concurrent use by the worker pool.
type syncDispatchRepo struct {
	mu      sync.Mutex
	post    models.QueuedPost
	status  string
	records int
}

func (f *syncDispatchRepo) ListDue(context.Context, time.Time, int) ([]models.QueuedPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status != models.QueuedPostStatusQueued {
		return nil, nil
	}
	return []models.QueuedPost{f.post}, nil
}

func (f *syncDispatchRepo) ClaimForDispatch(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id != f.post.ID || f.status != models.QueuedPostStatusQueued {
		return false, nil
	}
	f.status = models.QueuedPostStatusDispatching
	return true, nil
}

func (f *syncDispatchRepo) UpdateStatus(_ context.Context, _, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
	return nil
}

func (f *syncDispatchRepo) InsertPublishRecord(context.Context, *models.PublishRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records++
	return nil
}

func (f *syncDispatchRepo) recordCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records
}

func (f *syncDispatchRepo) currentStatus() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Two sweep ticks over the same due post must dispatch it exactly once: the
// claim in the first sweep removes the post from QUEUED before the second
// sweep lists due posts.
func TestPublisherSweepDispatchesDuePostOnce(t *testing.T) {
	repo := &syncDispatchRepo{post: duePost(), status: models.QueuedPostStatusQueued}
	accounts := &fakeDispatchAccounts{account: &models.SocialAccount{ID: "acc-1", Status: models.SocialAccountConnected}}
	svc := NewPublisherService(repo, accounts, nil, nil, time.Hour, 1, 1)
	svc.Start(context.Background())
	defer svc.Stop()

	svc.Sweep(context.Background())
	svc.Sweep(context.Background())

	require.Eventually(t, func() bool {
		return repo.recordCount() >= 1
	}, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, repo.recordCount())
	assert.Equal(t, models.QueuedPostStatusPublished, repo.currentStatus())
}
