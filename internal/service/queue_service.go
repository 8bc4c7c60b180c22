package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/cmis-platform/queue-api/internal/models"
	"github.com/cmis-platform/queue-api/internal/repository"
	appErrors "github.com/cmis-platform/queue-api/pkg/errors"
)

var (
	weekdayMaskPattern = regexp.MustCompile(`^[01]{7}$`)
	timeSlotPattern    = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)
)

type queueConfigRepository interface {
	GetByAccount(ctx context.Context, orgID, accountID string) (*models.QueueConfig, error)
	Upsert(ctx context.Context, cfg *models.QueueConfig) error
}

type queuedPostRepository interface {
	Insert(ctx context.Context, post *models.QueuedPost) error
	ExistsAt(ctx context.Context, accountID string, ts time.Time) (bool, error)
	ListByAccount(ctx context.Context, orgID, accountID string) ([]models.QueuedPost, error)
	DeleteByPostID(ctx context.Context, orgID, postID string) (string, bool, error)
}

// UpsertQueueConfigRequest creates or partially updates a queue config.
// Nil fields keep their prior (or default) values.
type UpsertQueueConfigRequest struct {
	SocialAccountID string    `json:"social_account_id"`
	WeekdaysEnabled *string   `json:"weekdays_enabled,omitempty"`
	TimeSlots       *[]string `json:"time_slots,omitempty"`
	Timezone        *string   `json:"timezone,omitempty"`
	IsActive        *bool     `json:"is_active,omitempty"`
}

// SchedulePostRequest assigns a content item to a slot. When ScheduledFor is
// omitted the next available slot is computed.
type SchedulePostRequest struct {
	PostID       string     `json:"post_id" validate:"required"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
}

// QueueService owns posting-schedule configuration and slot allocation.
type QueueService struct {
	cfgRepo     queueConfigRepository
	postRepo    queuedPostRepository
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	horizonDays int
	maxRetries  int
	now         func() time.Time
}

// NewQueueService instantiates QueueService.
func NewQueueService(cfgRepo queueConfigRepository, postRepo queuedPostRepository, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, horizonDays, maxRetries int) *QueueService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if horizonDays <= 0 {
		horizonDays = 365
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &QueueService{
		cfgRepo:     cfgRepo,
		postRepo:    postRepo,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		horizonDays: horizonDays,
		maxRetries:  maxRetries,
		now:         time.Now,
	}
}

// GetConfig loads the queue configuration for an account.
func (s *QueueService) GetConfig(ctx context.Context, tenant models.TenantContext, accountID string) (*models.QueueConfig, error) {
	cfg, err := s.cfgRepo.GetByAccount(ctx, tenant.OrgID, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotConfigured, "queue is not configured for this account")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load queue config")
	}
	return cfg, nil
}

// UpsertConfig creates the config when absent, otherwise merges only the
// supplied fields into the existing row. Already-scheduled posts are never
// retroactively invalidated.
func (s *QueueService) UpsertConfig(ctx context.Context, tenant models.TenantContext, accountID string, req UpsertQueueConfigRequest) (*models.QueueConfig, error) {
	if accountID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "social_account_id is required")
	}
	if err := s.validateConfigRequest(req); err != nil {
		return nil, err
	}

	cfg, err := s.cfgRepo.GetByAccount(ctx, tenant.OrgID, accountID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load queue config")
		}
		cfg = &models.QueueConfig{
			OrgID:           tenant.OrgID,
			SocialAccountID: accountID,
			WeekdaysEnabled: models.DefaultWeekdayMask,
			TimeSlots:       pq.StringArray{},
			Timezone:        "UTC",
			IsActive:        true,
		}
	}

	if req.WeekdaysEnabled != nil {
		cfg.WeekdaysEnabled = *req.WeekdaysEnabled
	}
	if req.TimeSlots != nil {
		cfg.TimeSlots = pq.StringArray(*req.TimeSlots)
	}
	if req.Timezone != nil {
		cfg.Timezone = *req.Timezone
	}
	if req.IsActive != nil {
		cfg.IsActive = *req.IsActive
	}

	if err := s.cfgRepo.Upsert(ctx, cfg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save queue config")
	}
	return cfg, nil
}

// NextAvailableSlot computes the first free legal slot strictly after the
// reference time. A nil reference means now.
func (s *QueueService) NextAvailableSlot(ctx context.Context, tenant models.TenantContext, accountID string, after *time.Time) (*models.NextSlotResult, error) {
	cfg, err := s.loadActiveConfig(ctx, tenant, accountID)
	if err != nil {
		return nil, err
	}

	ref := s.now().UTC()
	if after != nil {
		ref = *after
	}

	slot, err := s.searchSlot(ctx, cfg, ref)
	if err != nil {
		return nil, err
	}
	return &models.NextSlotResult{NextSlot: slot, Timezone: cfg.Timezone}, nil
}

// SchedulePost assigns a content item to a slot. An explicit timestamp is
// trusted as-is without weekday or time-of-day checks; storage still rejects
// exact double-booking. Without a timestamp the engine runs the bounded
// search-and-insert loop, re-searching past any slot another writer claimed
// first.
func (s *QueueService) SchedulePost(ctx context.Context, tenant models.TenantContext, accountID string, req SchedulePostRequest) (*models.QueuedPost, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}

	if req.ScheduledFor != nil {
		post := &models.QueuedPost{
			OrgID:           tenant.OrgID,
			PostID:          req.PostID,
			SocialAccountID: accountID,
			ScheduledFor:    req.ScheduledFor.UTC(),
		}
		if err := s.postRepo.Insert(ctx, post); err != nil {
			if errors.Is(err, repository.ErrDuplicateSlot) {
				return nil, appErrors.Clone(appErrors.ErrConflict, "a post is already scheduled at this time")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to schedule post")
		}
		s.metrics.IncPostScheduled()
		s.invalidateStatistics(ctx, tenant.OrgID, accountID)
		return post, nil
	}

	cfg, err := s.loadActiveConfig(ctx, tenant, accountID)
	if err != nil {
		return nil, s.asCannotSchedule(err)
	}

	after := s.now().UTC()
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		slot, err := s.searchSlot(ctx, cfg, after)
		if err != nil {
			return nil, s.asCannotSchedule(err)
		}

		post := &models.QueuedPost{
			OrgID:           tenant.OrgID,
			PostID:          req.PostID,
			SocialAccountID: accountID,
			ScheduledFor:    slot,
		}
		err = s.postRepo.Insert(ctx, post)
		if err == nil {
			s.metrics.IncPostScheduled()
			s.invalidateStatistics(ctx, tenant.OrgID, accountID)
			return post, nil
		}
		if !errors.Is(err, repository.ErrDuplicateSlot) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to schedule post")
		}

		// Another writer claimed the slot between search and insert.
		// Resume the search from the lost candidate.
		s.metrics.IncScheduleConflictRetry()
		s.logger.Info("slot claimed concurrently, retrying",
			zap.String("account_id", accountID),
			zap.Time("slot", slot),
			zap.Int("attempt", attempt+1),
		)
		after = slot
	}

	return nil, appErrors.Clone(appErrors.ErrCannotSchedule, "could not claim a slot after repeated conflicts")
}

// RemoveFromQueue unschedules a content item.
func (s *QueueService) RemoveFromQueue(ctx context.Context, tenant models.TenantContext, postID string) error {
	accountID, deleted, err := s.postRepo.DeleteByPostID(ctx, tenant.OrgID, postID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove queued post")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrPostNotFound, "post is not in the queue")
	}
	s.invalidateStatistics(ctx, tenant.OrgID, accountID)
	return nil
}

// ListQueuedPosts returns the account's queue in chronological order.
func (s *QueueService) ListQueuedPosts(ctx context.Context, tenant models.TenantContext, accountID string) ([]models.QueuedPost, error) {
	posts, err := s.postRepo.ListByAccount(ctx, tenant.OrgID, accountID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list queued posts")
	}
	return posts, nil
}

// Statistics derives queue density aggregates, served from cache when warm.
func (s *QueueService) Statistics(ctx context.Context, tenant models.TenantContext, accountID string) (*models.QueueStatistics, error) {
	cacheKey := statisticsCacheKey(tenant.OrgID, accountID)
	if s.cache.Enabled() {
		var cached models.QueueStatistics
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	posts, err := s.ListQueuedPosts(ctx, tenant, accountID)
	if err != nil {
		return nil, err
	}

	stats := s.aggregateStatistics(posts)

	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, cacheKey, stats); err != nil {
			s.logger.Warn("failed to cache queue statistics", zap.Error(err))
		}
	}
	return stats, nil
}

func (s *QueueService) aggregateStatistics(posts []models.QueuedPost) *models.QueueStatistics {
	now := s.now().UTC()
	stats := &models.QueueStatistics{
		TotalQueued: len(posts),
		GeneratedAt: now,
	}

	var gapTotal time.Duration
	var gapCount int
	for i, post := range posts {
		if post.ScheduledFor.Before(now.AddDate(0, 0, 7)) && post.ScheduledFor.After(now) {
			stats.Next7Days++
		}
		if post.ScheduledFor.Before(now.AddDate(0, 0, 30)) && post.ScheduledFor.After(now) {
			stats.Next30Days++
		}
		if i > 0 {
			gapTotal += post.ScheduledFor.Sub(posts[i-1].ScheduledFor)
			gapCount++
		}
	}
	if gapCount > 0 {
		stats.AverageGapSeconds = gapTotal.Seconds() / float64(gapCount)
	}
	if len(posts) > 0 {
		first := posts[0].ScheduledFor
		stats.NextScheduledFor = &first
	}
	return stats
}

func (s *QueueService) loadActiveConfig(ctx context.Context, tenant models.TenantContext, accountID string) (*models.QueueConfig, error) {
	cfg, err := s.GetConfig(ctx, tenant, accountID)
	if err != nil {
		return nil, err
	}
	if !cfg.IsActive {
		return nil, appErrors.Clone(appErrors.ErrNotConfigured, "queue is inactive for this account")
	}
	return cfg, nil
}

// searchSlot walks forward day by day from the reference time, in the
// queue's timezone, and returns the first slot that is on an enabled
// weekday, at a configured time of day, strictly after the reference, and
// not already occupied.
func (s *QueueService) searchSlot(ctx context.Context, cfg *models.QueueConfig, after time.Time) (time.Time, error) {
	if len(cfg.TimeSlots) == 0 {
		return time.Time{}, appErrors.Clone(appErrors.ErrNoSlots, "queue has no time slots configured")
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "invalid queue timezone")
	}

	slots, err := parseTimeSlots(cfg.TimeSlots)
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "invalid time slot in queue config")
	}

	localAfter := after.In(loc)
	day := time.Date(localAfter.Year(), localAfter.Month(), localAfter.Day(), 0, 0, 0, 0, loc)

	for i := 0; i < s.horizonDays; i++ {
		if cfg.WeekdayEnabled(mondayIndex(day.Weekday())) {
			for _, slot := range slots {
				candidate := time.Date(day.Year(), day.Month(), day.Day(), slot.hour, slot.minute, 0, 0, loc)
				// A DST gap normalizes a nonexistent wall-clock time to a
				// different hour; that day has no slot at this time.
				if candidate.Hour() != slot.hour || candidate.Minute() != slot.minute {
					continue
				}
				if !candidate.After(after) {
					continue
				}
				occupied, err := s.postRepo.ExistsAt(ctx, cfg.SocialAccountID, candidate)
				if err != nil {
					return time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check slot occupancy")
				}
				if !occupied {
					s.metrics.ObserveSlotSearch(i + 1)
					return candidate, nil
				}
			}
		}
		day = day.AddDate(0, 0, 1)
	}

	s.metrics.ObserveSlotSearch(s.horizonDays)
	return time.Time{}, appErrors.Clone(appErrors.ErrNoSlotFound, fmt.Sprintf("no free slot within %d days", s.horizonDays))
}

func (s *QueueService) validateConfigRequest(req UpsertQueueConfigRequest) error {
	if req.WeekdaysEnabled != nil && !weekdayMaskPattern.MatchString(*req.WeekdaysEnabled) {
		return appErrors.Clone(appErrors.ErrValidation, "weekdays_enabled must be seven 0/1 characters")
	}
	if req.TimeSlots != nil {
		for _, slot := range *req.TimeSlots {
			if !timeSlotPattern.MatchString(slot) {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid time slot %q, expected HH:MM", slot))
			}
		}
	}
	if req.Timezone != nil {
		if _, err := time.LoadLocation(*req.Timezone); err != nil || *req.Timezone == "" {
			return appErrors.Clone(appErrors.ErrValidation, "timezone must be a valid IANA name")
		}
	}
	return nil
}

// asCannotSchedule preserves definitional failures (not configured, no
// slots) and maps everything else onto the schedule endpoint's 400 contract.
func (s *QueueService) asCannotSchedule(err error) error {
	appErr := appErrors.FromError(err)
	switch appErr.Code {
	case appErrors.ErrNotConfigured.Code, appErrors.ErrNoSlots.Code, appErrors.ErrNoSlotFound.Code:
		return appErrors.Wrap(err, appErrors.ErrCannotSchedule.Code, appErrors.ErrCannotSchedule.Status, appErr.Message)
	default:
		return err
	}
}

func (s *QueueService) invalidateStatistics(ctx context.Context, orgID, accountID string) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, statisticsCacheKey(orgID, accountID)); err != nil {
		s.logger.Warn("failed to invalidate statistics cache", zap.Error(err))
	}
}

func statisticsCacheKey(orgID, accountID string) string {
	return fmt.Sprintf("queue:stats:%s:%s", orgID, accountID)
}

type timeOfDay struct {
	hour   int
	minute int
}

// parseTimeSlots converts HH:MM strings and sorts them ascending so a
// misordered config still yields chronological candidates.
func parseTimeSlots(raw []string) ([]timeOfDay, error) {
	slots := make([]timeOfDay, 0, len(raw))
	for _, entry := range raw {
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed time slot %q", entry)
		}
		hour, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("malformed time slot %q", entry)
		}
		minute, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("malformed time slot %q", entry)
		}
		if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
			return nil, fmt.Errorf("time slot %q out of range", entry)
		}
		slots = append(slots, timeOfDay{hour: hour, minute: minute})
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].hour != slots[j].hour {
			return slots[i].hour < slots[j].hour
		}
		return slots[i].minute < slots[j].minute
	})
	return slots, nil
}

// mondayIndex maps time.Weekday (Sunday = 0) onto the Monday-first weekday
// mask convention.
func mondayIndex(w time.Weekday) int {
	return (int(w) + 6) % 7
}
