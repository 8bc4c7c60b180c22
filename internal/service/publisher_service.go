package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cmis-platform/queue-api/internal/models"
	appErrors "github.com/cmis-platform/queue-api/pkg/errors"
	"github.com/cmis-platform/queue-api/pkg/jobs"
)

const publishJobType = "publish_post"

type publisherPostRepository interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.QueuedPost, error)
	ClaimForDispatch(ctx context.Context, id string) (bool, error)
	UpdateStatus(ctx context.Context, id, status string) error
	InsertPublishRecord(ctx context.Context, record *models.PublishRecord) error
}

type publisherAccountRepository interface {
	FindByID(ctx context.Context, orgID, id string) (*models.SocialAccount, error)
}

// PublisherService sweeps the queue for due posts and dispatches them
// through a worker pool. The actual network delivery to social platforms
// lives outside this service; a dispatch here transitions the post and
// records the outcome.
type PublisherService struct {
	posts    publisherPostRepository
	accounts publisherAccountRepository
	metrics  *MetricsService
	logger   *zap.Logger
	interval time.Duration
	queue    *jobs.Queue

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	now    func() time.Time
}

// NewPublisherService builds the publisher with its own job queue.
func NewPublisherService(posts publisherPostRepository, accounts publisherAccountRepository, metrics *MetricsService, logger *zap.Logger, interval time.Duration, workers, maxRetries int) *PublisherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	s := &PublisherService{
		posts:    posts,
		accounts: accounts,
		metrics:  metrics,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
	s.queue = jobs.NewQueue("publisher", s.handleJob, jobs.QueueConfig{
		Workers:    workers,
		MaxRetries: maxRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the worker pool and the periodic sweep.
func (s *PublisherService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.queue.Start(runCtx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.Sweep(runCtx)
			}
		}
	}()
	s.logger.Sugar().Infow("publisher started", "interval", s.interval)
}

// Stop halts the sweep and drains the worker pool.
func (s *PublisherService) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.queue.Stop()
}

// Sweep claims every due post and enqueues a publish job for it. The claim
// moves the post out of QUEUED before the job is buffered, so a tick that
// fires while an earlier job is still in flight cannot dispatch the same
// post twice.
func (s *PublisherService) Sweep(ctx context.Context) {
	due, err := s.posts.ListDue(ctx, s.now().UTC(), 100)
	if err != nil {
		s.logger.Error("publisher sweep failed", zap.Error(err))
		return
	}
	for _, post := range due {
		claimed, err := s.posts.ClaimForDispatch(ctx, post.ID)
		if err != nil {
			s.logger.Error("failed to claim due post", zap.String("post_id", post.PostID), zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}
		if err := s.queue.Enqueue(jobs.Job{ID: post.ID, Type: publishJobType, Payload: post}); err != nil {
			s.logger.Warn("failed to enqueue publish job", zap.String("post_id", post.PostID), zap.Error(err))
			if err := s.posts.UpdateStatus(ctx, post.ID, models.QueuedPostStatusQueued); err != nil {
				s.logger.Error("failed to release claimed post", zap.String("post_id", post.PostID), zap.Error(err))
			}
		}
	}
}

func (s *PublisherService) handleJob(ctx context.Context, job jobs.Job) error {
	post, ok := job.Payload.(models.QueuedPost)
	if !ok {
		s.logger.Error("unexpected publish job payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.Dispatch(ctx, post)
}

// Dispatch transitions one due post and records the outcome.
func (s *PublisherService) Dispatch(ctx context.Context, post models.QueuedPost) error {
	account, err := s.accounts.FindByID(ctx, post.OrgID, post.SocialAccountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.fail(ctx, post, "social account no longer exists")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account for dispatch")
	}
	if account.Status != models.SocialAccountConnected {
		return s.fail(ctx, post, "social account is disconnected")
	}

	if err := s.posts.UpdateStatus(ctx, post.ID, models.QueuedPostStatusPublished); err != nil {
		return err
	}
	s.metrics.IncPostPublished()
	return s.posts.InsertPublishRecord(ctx, &models.PublishRecord{
		QueuedPostID:    post.ID,
		SocialAccountID: post.SocialAccountID,
		Status:          models.QueuedPostStatusPublished,
		PublishedAt:     s.now().UTC(),
	})
}

func (s *PublisherService) fail(ctx context.Context, post models.QueuedPost, detail string) error {
	s.metrics.IncPublishFailure()
	if err := s.posts.UpdateStatus(ctx, post.ID, models.QueuedPostStatusFailed); err != nil {
		return err
	}
	return s.posts.InsertPublishRecord(ctx, &models.PublishRecord{
		QueuedPostID:    post.ID,
		SocialAccountID: post.SocialAccountID,
		Status:          models.QueuedPostStatusFailed,
		Detail:          detail,
		PublishedAt:     s.now().UTC(),
	})
}
